package client

import (
	"fmt"
	"net/http"
	"strings"
)

// ConfigurationError reports a base URL the client cannot be built with.
type ConfigurationError struct {
	URL    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("'%s' is not a valid URL: %s", e.URL, e.Reason)
}

// ValidationError reports a local argument problem found before any request
// was sent.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrorDetail is one (title, detail) pair from an API error body.
type ErrorDetail struct {
	Title  string
	Detail string
	Code   int
}

func (d ErrorDetail) String() string {
	switch {
	case d.Title == "":
		return d.Detail
	case d.Detail == "":
		return d.Title
	default:
		return d.Title + ": " + d.Detail
	}
}

// APIError is returned for every non-2xx response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Errors     []ErrorDetail
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Errors) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Messages(), "; "))
		b.WriteString(")")
	}
	return b.String()
}

// Messages renders each sub-error as "title: detail".
func (e *APIError) Messages() []string {
	out := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		out = append(out, d.String())
	}
	return out
}
