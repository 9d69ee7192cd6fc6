package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// User-facing messages for classified failures.
const (
	MsgTimeout       = "Upload timed out - file may be too large or connection slow"
	MsgTooLarge      = "File too large - reduce size or upload fewer files"
	MsgUnsupported   = "Unsupported file format"
	MsgServerFailure = "Server error - try uploading smaller files"
)

// ErrTimeout is matched by errors.Is for any request that hit its deadline.
var ErrTimeout = errors.New("upload timed out")

// ValidationError is returned before any request is made.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// TransportError wraps a failure to complete the HTTP exchange.
type TransportError struct {
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	return UserMessage(e)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes timeouts match ErrTimeout.
func (e *TransportError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}

// ServerError is a non-2xx response.
type ServerError struct {
	StatusCode int
	// Message is the server-supplied explanation, if the body carried one.
	Message string
	Body    string
}

func (e *ServerError) Error() string {
	return UserMessage(e)
}

// UserMessage maps err to the text shown to users. Timeouts, 413, 415 and 5xx
// get fixed texts; a server-supplied message is used verbatim; anything else
// becomes a generic upload failure.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}

	var terr *TransportError
	if errors.As(err, &terr) {
		if terr.Timeout || errors.Is(terr.Err, context.DeadlineExceeded) {
			return MsgTimeout
		}
		return "Upload failed: " + describe(terr.Err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return MsgTimeout
	}

	var serr *ServerError
	if errors.As(err, &serr) {
		switch {
		case serr.StatusCode == http.StatusRequestEntityTooLarge:
			return MsgTooLarge
		case serr.StatusCode == http.StatusUnsupportedMediaType:
			return MsgUnsupported
		case serr.StatusCode >= 500:
			return MsgServerFailure
		case serr.Message != "":
			return serr.Message
		}
		return fmt.Sprintf("Upload failed: server responded %d %s", serr.StatusCode, http.StatusText(serr.StatusCode))
	}

	return "Upload failed: " + err.Error()
}

func describe(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
