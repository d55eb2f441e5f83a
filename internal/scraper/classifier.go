// -----------------------------------------------------------------------
// Response Classifier - Artifact vs validation failure vs transport error
// -----------------------------------------------------------------------

package scraper

import (
	"strings"
)

// diagnosticPrefixLimit bounds how much of a rejected response body is
// captured for operator triage.
const diagnosticPrefixLimit = 512

// Classify inspects a submission response and returns the artifact bytes on
// success. The three-way split is deliberate:
//
//   - CSV or octet-stream content with a 2xx status is the report artifact.
//   - HTML content with a 2xx status means the server accepted the
//     connection but rejected the form (malformed payload, expired token).
//     Not retryable with the same token; the error carries a bounded body
//     prefix for diagnostics.
//   - Anything else is a transport fault and eligible for bounded retry.
func Classify(resp *RawResponse) ([]byte, error) {
	if resp == nil {
		return nil, &TransportError{}
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	contentType := strings.ToLower(resp.ContentType)

	if success {
		if strings.Contains(contentType, "text/csv") || strings.Contains(contentType, "octet-stream") {
			return resp.Body, nil
		}
		if strings.Contains(contentType, "text/html") {
			return nil, &ValidationFailure{
				StatusCode: resp.StatusCode,
				BodyPrefix: bodyPrefix(resp.Body),
			}
		}
	}

	return nil, &TransportError{StatusCode: resp.StatusCode}
}

func bodyPrefix(body []byte) string {
	if len(body) > diagnosticPrefixLimit {
		body = body[:diagnosticPrefixLimit]
	}
	return strings.TrimSpace(string(body))
}
