package utils

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrTransient indicates failure worth retrying the whole job:
// timeouts, connection refused/reset, overloaded upstream
type ErrTransient struct {
	err error
}

// NewErrTransient creates new error
func NewErrTransient(err error) error {
	return &ErrTransient{err: err}
}

func (e *ErrTransient) Error() string {
	return "transient error: " + e.err.Error()
}

func (e *ErrTransient) Unwrap() error {
	return e.err
}

// IsTransient checks if err is marked as transient
func IsTransient(err error) bool {
	var tErr *ErrTransient
	return errors.As(err, &tErr)
}

// IsTransientErr classifies transport level errors
func IsTransientErr(err error) bool {
	if err == nil {
		return false
	}
	if IsTransient(err) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsTransientCode returns true for http codes worth to retry
func IsTransientCode(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

// WrapIfTransient marks err as transient if it is a transport failure
func WrapIfTransient(err error) error {
	if err == nil || IsTransient(err) || !IsTransientErr(err) {
		return err
	}
	return NewErrTransient(err)
}
