package media

import (
	"errors"
	"fmt"
)

var (
	// ErrFFmpegNotFound ffmpeg binary is not available
	ErrFFmpegNotFound = errors.New("ffmpeg binary not found")
	// ErrNoInput input file is missing or empty
	ErrNoInput = errors.New("no input file")
)

// Error represents a failure of media processing
type Error struct {
	Operation string // extract_audio, burn_subtitles
	File      string
	Err       error
	Stderr    string
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("ffmpeg %s failed for %s: %v (stderr: %s)", e.Operation, e.File, e.Err, e.Stderr)
	}
	return fmt.Sprintf("ffmpeg %s failed for %s: %v", e.Operation, e.File, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new media Error
func NewError(operation, file string, err error, stderr string) *Error {
	return &Error{Operation: operation, File: file, Err: err, Stderr: stderr}
}
