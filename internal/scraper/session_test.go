package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/common"
)

const testFormPage = `<html><body><form id="report">
<input type="hidden" name="javax.faces.ViewState" value="%s"/>
<select name="j_idt76" multiple="multiple">
<option value="202507">julho 2025</option>
<option value="202508">agosto 2025</option>
<option value="202509">setembro 2025</option>
</select>
</form></body></html>`

func testPortalConfig(endpoint string) *common.PortalConfig {
	return &common.PortalConfig{
		Endpoint:        endpoint,
		UserAgent:       "test-agent",
		RequestTimeout:  "5s",
		RateLimit:       1000, // no throttling in tests
		TokenSelector:   `input[name="javax.faces.ViewState"]`,
		OptionsSelector: `select[name="j_idt76"]`,
		SelectionField:  "j_idt76",
		ExtraFields: map[string][]string{
			"unidGeo": {"brasil"},
		},
	}
}

func newTestSessionClient(t *testing.T, endpoint string) *SessionClient {
	t.Helper()
	client, err := NewSessionClient(testPortalConfig(endpoint), arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewSessionClient() error = %v", err)
	}
	return client
}

func TestFetchSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, testFormPage, "token-abc")
	}))
	defer server.Close()

	client := newTestSessionClient(t, server.URL)
	session, err := client.FetchSession(context.Background())
	if err != nil {
		t.Fatalf("FetchSession() error = %v", err)
	}

	if session.Token != "token-abc" {
		t.Errorf("Token = %q, want %q", session.Token, "token-abc")
	}
	if session.TokenField != "javax.faces.ViewState" {
		t.Errorf("TokenField = %q", session.TokenField)
	}
	want := []string{"202507", "202508", "202509"}
	if !reflect.DeepEqual(session.Options, want) {
		t.Errorf("Options = %v, want %v", session.Options, want)
	}
}

func TestFetchSessionIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, testFormPage, "rotating-token")
	}))
	defer server.Close()

	client := newTestSessionClient(t, server.URL)

	first, err := client.FetchSession(context.Background())
	if err != nil {
		t.Fatalf("first FetchSession() error = %v", err)
	}
	second, err := client.FetchSession(context.Background())
	if err != nil {
		t.Fatalf("second FetchSession() error = %v", err)
	}

	if !reflect.DeepEqual(first.Options, second.Options) {
		t.Errorf("option sets differ across fetches: %v vs %v", first.Options, second.Options)
	}
}

func TestFetchSessionProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{"missing token input", `<html><body><select name="j_idt76"><option value="1">x</option></select></body></html>`},
		{"missing option select", `<html><body><input type="hidden" name="javax.faces.ViewState" value="t"/></body></html>`},
		{"token without value", `<html><body><input name="javax.faces.ViewState" value=""/><select name="j_idt76"><option value="1">x</option></select></body></html>`},
		{"error page instead of form", `<html><body><h1>500 Internal Error</h1></body></html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, tt.page)
			}))
			defer server.Close()

			client := newTestSessionClient(t, server.URL)
			_, err := client.FetchSession(context.Background())

			var protocolErr *ProtocolError
			if !errors.As(err, &protocolErr) {
				t.Fatalf("expected ProtocolError, got %v", err)
			}
		})
	}
}

func TestFetchSessionNoOptions(t *testing.T) {
	page := `<html><body><input name="javax.faces.ViewState" value="t"/><select name="j_idt76"></select></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	client := newTestSessionClient(t, server.URL)
	_, err := client.FetchSession(context.Background())

	var noOptsErr *NoOptionsError
	if !errors.As(err, &noOptsErr) {
		t.Fatalf("expected NoOptionsError, got %v", err)
	}
}

func TestFetchSessionServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestSessionClient(t, server.URL)
	_, err := client.FetchSession(context.Background())

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestSubmitEncodesRepeatedFieldsAndEchoesToken(t *testing.T) {
	var gotSelection []string
	var gotToken string
	var gotExtra []string
	var gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, testFormPage, "tok-1")
			return
		}

		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotSelection = r.PostForm["j_idt76"]
		gotToken = r.PostForm.Get("javax.faces.ViewState")
		gotExtra = r.PostForm["unidGeo"]

		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, "a;b\n1;2\n")
	}))
	defer server.Close()

	client := newTestSessionClient(t, server.URL)
	session, err := client.FetchSession(context.Background())
	if err != nil {
		t.Fatalf("FetchSession() error = %v", err)
	}

	resp, err := client.Submit(context.Background(), session, []string{"202507", "202508"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	// Multi-valued field must arrive as repeated key=value pairs
	if !reflect.DeepEqual(gotSelection, []string{"202507", "202508"}) {
		t.Errorf("selection = %v, want repeated entries", gotSelection)
	}
	if gotToken != "tok-1" {
		t.Errorf("token = %q, want echo of fetched token", gotToken)
	}
	if !reflect.DeepEqual(gotExtra, []string{"brasil"}) {
		t.Errorf("extra fields = %v", gotExtra)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "a;b\n1;2\n" {
		t.Errorf("unexpected response: status %d, body %q", resp.StatusCode, resp.Body)
	}
}

func TestSubmitRequiresSessionAndSelection(t *testing.T) {
	client := newTestSessionClient(t, "http://localhost:1")

	if _, err := client.Submit(context.Background(), nil, []string{"x"}); err == nil {
		t.Error("expected error for nil session")
	}
	session := &SessionState{Token: "t", TokenField: "f"}
	if _, err := client.Submit(context.Background(), session, nil); err == nil {
		t.Error("expected error for empty selection")
	}
}
