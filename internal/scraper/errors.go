// -----------------------------------------------------------------------
// Scrape Errors - Error taxonomy for pipeline failure classification
// -----------------------------------------------------------------------

package scraper

import (
	"errors"
	"fmt"

	"github.com/ternarybob/tabula/internal/models"
)

// ProtocolError indicates the fetched page did not contain the expected
// structure (missing session token or option list). The server may be
// serving an error page or the page layout changed, so blind retry is
// pointless.
type ProtocolError struct {
	Selector string
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (selector %q)", e.Reason, e.Selector)
}

// NoOptionsError indicates the option list was found but empty. The source
// page is broken or upstream data is unavailable.
type NoOptionsError struct {
	Selector string
}

func (e *NoOptionsError) Error() string {
	return fmt.Sprintf("no options declared by server (selector %q)", e.Selector)
}

// EmptySelectionError indicates the caller requested values the server does
// not currently offer. A caller error, distinct from NoOptionsError.
type EmptySelectionError struct {
	Requested []string
	Available int
}

func (e *EmptySelectionError) Error() string {
	return fmt.Sprintf("requested selection %v has no overlap with %d available options", e.Requested, e.Available)
}

// ValidationFailure indicates the server accepted the connection but rejected
// the submitted form. The session token is spent; a retry must re-fetch a
// fresh session first. BodyPrefix carries a bounded diagnostic sample.
type ValidationFailure struct {
	StatusCode int
	BodyPrefix string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("server rejected submission (status %d): %s", e.StatusCode, e.BodyPrefix)
}

// TransportError indicates a network or server fault. Eligible for bounded
// retry within the same pipeline execution.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	return fmt.Sprintf("transport error: unexpected status %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StorageError indicates the artifact write failed. Infrastructure trouble,
// not scrape logic trouble, and surfaced distinctly for that reason.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ClassifyKind maps a pipeline error to its taxonomy kind string for the
// task record. Unknown errors map to the crash kind.
func ClassifyKind(err error) string {
	var protocolErr *ProtocolError
	var noOptionsErr *NoOptionsError
	var emptySelErr *EmptySelectionError
	var validationErr *ValidationFailure
	var transportErr *TransportError
	var storageErr *StorageError

	switch {
	case errors.As(err, &protocolErr):
		return models.ErrorKindProtocol
	case errors.As(err, &noOptionsErr):
		return models.ErrorKindNoOptions
	case errors.As(err, &emptySelErr):
		return models.ErrorKindEmptySelection
	case errors.As(err, &validationErr):
		return models.ErrorKindValidation
	case errors.As(err, &transportErr):
		return models.ErrorKindTransport
	case errors.As(err, &storageErr):
		return models.ErrorKindStorage
	default:
		return models.ErrorKindCrash
	}
}

// IsRetryable reports whether the error may succeed on a bounded retry
// within the same pipeline execution. Only transport faults qualify.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
