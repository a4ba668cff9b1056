package catalog

import (
	"fmt"
	"net/http"
	"strings"
)

// FetchError reports a non-success HTTP status or a transport failure.
// Status is zero for transport failures.
type FetchError struct {
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("fetch failed: %s", e.Message)
	}
	return fmt.Sprintf("fetch failed: status %d: %s", e.Status, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the storefront explicitly said the product does
// not exist, as opposed to a transient failure.
func (e *FetchError) NotFound() bool {
	if e == nil {
		return false
	}
	if e.Status == http.StatusNotFound {
		return true
	}
	return strings.Contains(e.Message, "UnknownIdentifierError")
}

// Transient reports whether retrying the same request may succeed.
func (e *FetchError) Transient() bool {
	if e == nil {
		return false
	}
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// ParseError reports a response body that is not the expected structured data.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed: %s", e.Message)
}

const ReasonNoIdentifiableData = "NoIdentifiableData"

// ExtractionError reports a single item that cannot be keyed.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}
