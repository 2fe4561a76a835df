package owm

import (
	"errors"
	"fmt"
)

// Kind classifies why a lookup produced no data.
type Kind string

const (
	KindEmptyQuery Kind = "empty_query"
	KindTransport  Kind = "transport"
	KindParse      Kind = "parse"
	KindNotFound   Kind = "not_found"
)

// Error is returned by every failed lookup.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the failure kind of err. A nil error has no kind; errors
// that did not come from this package are treated as transport failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

type httpStatusError struct {
	status int
	body   string
}

func (e httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("API returned status %d", e.status)
	}
	return fmt.Sprintf("API returned status %d: %s", e.status, e.body)
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se httpStatusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}
