package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrTransient_Error(t *testing.T) {
	assert.Equal(t, "transient error: olia", NewErrTransient(errors.New("olia")).Error())
}

func TestErrTransient_Unwrap(t *testing.T) {
	assert.True(t, errors.Is(NewErrTransient(io.EOF), io.EOF))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewErrTransient(io.EOF)))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", NewErrTransient(io.EOF))))
	assert.False(t, IsTransient(io.EOF))
	assert.False(t, IsTransient(nil))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransientErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("olia"), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: true},
		{name: "unexpected EOF", err: io.ErrUnexpectedEOF, want: true},
		{name: "refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: true},
		{name: "reset", err: syscall.ECONNRESET, want: true},
		{name: "net timeout", err: timeoutErr{}, want: true},
		{name: "op error", err: &net.OpError{Op: "dial", Err: errors.New("no route")}, want: true},
		{name: "marked", err: NewErrTransient(errors.New("olia")), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientErr(tt.err))
		})
	}
}

func TestIsTransientCode(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{code: 200, want: false},
		{code: 400, want: false},
		{code: 401, want: false},
		{code: 404, want: false},
		{code: 408, want: true},
		{code: 429, want: true},
		{code: 500, want: true},
		{code: 503, want: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientCode(tt.code))
		})
	}
}

func TestWrapIfTransient(t *testing.T) {
	assert.Nil(t, WrapIfTransient(nil))
	err := errors.New("olia")
	assert.Equal(t, err, WrapIfTransient(err))
	assert.True(t, IsTransient(WrapIfTransient(syscall.ECONNRESET)))
	tErr := NewErrTransient(err)
	assert.Equal(t, tErr, WrapIfTransient(tErr))
}
