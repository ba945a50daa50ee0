package logincapture

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a BrowserError for fallback decisions.
type ErrorKind string

const (
	KindEngineUnavailable ErrorKind = "engine_unavailable"
	KindNavigationTimeout ErrorKind = "navigation_timeout"
	KindNotFound          ErrorKind = "not_found"
	KindActionFailed      ErrorKind = "action_failed"
)

// Sentinels for errors.Is. They match any BrowserError of the same kind.
var (
	ErrEngineUnavailable = &BrowserError{Kind: KindEngineUnavailable}
	ErrNavigationTimeout = &BrowserError{Kind: KindNavigationTimeout}
	ErrNotFound          = &BrowserError{Kind: KindNotFound}
	ErrActionFailed      = &BrowserError{Kind: KindActionFailed}
)

// BrowserError is the custom error type for the package
type BrowserError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *BrowserError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("logincapture error [%s]: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("logincapture error [%s]: %s", e.Kind, msg)
}

func (e *BrowserError) Unwrap() error {
	return e.Err
}

// Is reports kind equality so wrapped errors match the package sentinels.
func (e *BrowserError) Is(target error) bool {
	t, ok := target.(*BrowserError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == ""
}

// NewBrowserError helps create a new error
func NewBrowserError(kind ErrorKind, op string, format string, a ...interface{}) error {
	return &BrowserError{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, a...),
	}
}

// WrapBrowserError attaches a kind and operation to an underlying error.
func WrapBrowserError(kind ErrorKind, op string, err error) error {
	return &BrowserError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first BrowserError in err's chain.
func KindOf(err error) ErrorKind {
	var be *BrowserError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
