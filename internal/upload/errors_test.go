package upload

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", &TransportError{Timeout: true, Err: context.DeadlineExceeded}, MsgTimeout},
		{"deadline inside transport error", &TransportError{Err: fmt.Errorf("post: %w", context.DeadlineExceeded)}, MsgTimeout},
		{"bare deadline", context.DeadlineExceeded, MsgTimeout},
		{"413", &ServerError{StatusCode: 413, Message: "Maximum upload size exceeded"}, MsgTooLarge},
		{"415", &ServerError{StatusCode: 415}, MsgUnsupported},
		{"502", &ServerError{StatusCode: 502, Message: "bad gateway"}, MsgServerFailure},
		{"server message", &ServerError{StatusCode: 400, Message: "Album is archived"}, "Album is archived"},
		{"status only", &ServerError{StatusCode: 409}, "Upload failed: server responded 409 Conflict"},
		{"connection", &TransportError{Err: errors.New("connection refused")}, "Upload failed: connection refused"},
		{"wrapped server error", fmt.Errorf("album 3: %w", &ServerError{StatusCode: 413}), MsgTooLarge},
		{"validation", &ValidationError{Messages: []string{"a", "b"}}, "a; b"},
		{"other", errors.New("boom"), "Upload failed: boom"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestErrorsKeepTheirType(t *testing.T) {
	var err error = &ServerError{StatusCode: 413, Body: `{"message":"too big"}`}

	assert.Equal(t, MsgTooLarge, err.Error())
	var serr *ServerError
	assert.True(t, errors.As(err, &serr))
	assert.Equal(t, 413, serr.StatusCode)

	timeout := &TransportError{Timeout: true, Err: context.DeadlineExceeded}
	assert.ErrorIs(t, timeout, ErrTimeout)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)
	assert.NotErrorIs(t, &TransportError{Err: errors.New("reset")}, ErrTimeout)
}
