package provider

import (
	"fmt"
	"sort"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/utils"
)

// ConfigurationError indicates missing provider credentials
type ConfigurationError struct {
	Provider string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %s is not configured", e.Provider)
}

// Error is a permanent provider failure: auth, rejected input, provider reported error
type Error struct {
	Provider string
	Code     int
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	res := fmt.Sprintf("provider %s", e.Provider)
	if e.Code > 0 {
		res += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Msg != "" {
		res += ": " + e.Msg
	}
	if e.Err != nil {
		res += ": " + e.Err.Error()
	}
	return res
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify wraps err as transient or as a permanent provider error
func Classify(provider string, code int, err error) error {
	if err == nil {
		return nil
	}
	if utils.IsTransient(err) {
		return err
	}
	if (code > 0 && utils.IsTransientCode(code)) || (code == 0 && utils.IsTransientErr(err)) {
		return utils.NewErrTransient(fmt.Errorf("%s: %w", provider, err))
	}
	return &Error{Provider: provider, Code: code, Err: err}
}

// NormalizeSegments orders segments by start, fails on inverted ranges
func NormalizeSegments(segments []api.Segment) ([]api.Segment, error) {
	res := make([]api.Segment, len(segments))
	copy(res, segments)
	for i, s := range res {
		if s.End < s.Start {
			return nil, fmt.Errorf("wrong segment %d: end %.3f < start %.3f", i, s.End, s.Start)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Start < res[j].Start })
	return res, nil
}

// WrongRawError is returned by extract funcs for unexpected raw values
func WrongRawError(provider string, raw RawResult) error {
	return &Error{Provider: provider, Msg: fmt.Sprintf("unexpected raw result %T", raw)}
}
