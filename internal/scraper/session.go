// -----------------------------------------------------------------------
// Form Session Client - Stateful two-phase exchange with the report form
// -----------------------------------------------------------------------

package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/tabula/internal/common"
)

// SessionState holds the ephemeral state captured from one form fetch: the
// hidden session token and the server-declared valid option values, in page
// order. Lifetime is one pipeline execution. Never persisted, never shared
// across tasks.
type SessionState struct {
	Token      string
	TokenField string // Form field name the token must be echoed under
	Options    []string
}

// RawResponse is the submission result handed to the classifier
type RawResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// SessionClient performs the two-phase exchange: fetch the form page to
// capture token and options, then submit a form-encoded payload echoing the
// token. It carries a cookie jar because the server ties the token to the
// session cookie, and a rate limiter because the portal throttles
// aggressively. No retries happen here; retry policy belongs to the caller.
type SessionClient struct {
	config  *common.PortalConfig
	client  *resty.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewSessionClient creates a session client for the configured portal
func NewSessionClient(config *common.PortalConfig, logger arbor.ILogger) (*SessionClient, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("portal endpoint is required")
	}
	if _, err := url.Parse(config.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid portal endpoint: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(config.RequestTimeoutDuration())
	client.SetHeader("User-Agent", config.UserAgent)

	rps := config.RateLimit
	if rps <= 0 {
		rps = 1
	}

	return &SessionClient{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}, nil
}

// FetchSession issues a read request to the form endpoint and extracts the
// hidden session token and the declared option values. Exactly one token
// input and one option select must be present; absence of either means the
// page shape changed or the server returned an error page instead of the
// form.
func (c *SessionClient) FetchSession(ctx context.Context) (*SessionState, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}

	res, err := c.client.R().
		SetContext(ctx).
		Get(c.config.Endpoint)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return nil, &TransportError{StatusCode: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, &ProtocolError{Selector: "", Reason: fmt.Sprintf("unparseable form page: %v", err)}
	}

	tokenSel := doc.Find(c.config.TokenSelector)
	if tokenSel.Length() != 1 {
		return nil, &ProtocolError{
			Selector: c.config.TokenSelector,
			Reason:   fmt.Sprintf("expected exactly one session token input, found %d", tokenSel.Length()),
		}
	}
	token := tokenSel.AttrOr("value", "")
	if token == "" {
		return nil, &ProtocolError{Selector: c.config.TokenSelector, Reason: "session token input has no value"}
	}
	tokenField := tokenSel.AttrOr("name", "")
	if tokenField == "" {
		return nil, &ProtocolError{Selector: c.config.TokenSelector, Reason: "session token input has no name"}
	}

	optionSel := doc.Find(c.config.OptionsSelector)
	if optionSel.Length() != 1 {
		return nil, &ProtocolError{
			Selector: c.config.OptionsSelector,
			Reason:   fmt.Sprintf("expected exactly one option select, found %d", optionSel.Length()),
		}
	}

	var options []string
	optionSel.Find("option").Each(func(_ int, opt *goquery.Selection) {
		value := strings.TrimSpace(opt.AttrOr("value", ""))
		if value != "" {
			options = append(options, value)
		}
	})
	if len(options) == 0 {
		return nil, &NoOptionsError{Selector: c.config.OptionsSelector}
	}

	c.logger.Debug().
		Str("endpoint", c.config.Endpoint).
		Int("options", len(options)).
		Msg("Captured form session")

	return &SessionState{Token: token, TokenField: tokenField, Options: options}, nil
}

// Submit posts the form-encoded payload: the session token verbatim, the
// resolved selection as repeated key=value pairs under the selection field,
// and the configured auxiliary fields. Repeated keys are load-bearing: the
// server treats a comma-joined value as a single (last) selection.
func (c *SessionClient) Submit(ctx context.Context, session *SessionState, resolved []string) (*RawResponse, error) {
	if session == nil || session.Token == "" {
		return nil, fmt.Errorf("session token is required")
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("resolved selection is empty")
	}

	values := url.Values{}
	for name, fieldValues := range c.config.ExtraFields {
		for _, v := range fieldValues {
			values.Add(name, v)
		}
	}
	for _, v := range resolved {
		values.Add(c.config.SelectionField, v)
	}
	values.Set(session.TokenField, session.Token)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(values.Encode()).
		Post(c.config.Endpoint)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	c.logger.Debug().
		Str("endpoint", c.config.Endpoint).
		Int("status", res.StatusCode()).
		Int("selected", len(resolved)).
		Msg("Submitted report request")

	return &RawResponse{
		StatusCode:  res.StatusCode(),
		ContentType: res.Header().Get("Content-Type"),
		Body:        res.Body(),
	}, nil
}
