package fanout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/provider"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
)

// ErrNoProvidersAvailable no configured provider for the job
var ErrNoProvidersAvailable = errors.New("no providers available")

// Result of one fan-out, keyed by provider name
type Result struct {
	Candidates map[string]*api.Candidate
	Failures   map[string]error
}

// AllFailedError is returned when no provider produced a candidate
type AllFailedError struct {
	Failures map[string]error
}

func (e *AllFailedError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for n := range e.Failures {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", n, e.Failures[n]))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Transient reports if any of the failures is worth retrying
func (e *AllFailedError) Transient() bool {
	for _, err := range e.Failures {
		if utils.IsTransient(err) {
			return true
		}
	}
	return false
}

// Unwrap exposes the first transient failure, if any
func (e *AllFailedError) Unwrap() error {
	for _, err := range e.Failures {
		if utils.IsTransient(err) {
			return err
		}
	}
	return nil
}

// Run calls all adapters concurrently and waits for every one of them.
// A failing adapter never cancels the others.
func Run(ctx context.Context, adapters []provider.Adapter, audio provider.Audio) (*Result, error) {
	if len(adapters) == 0 {
		return nil, ErrNoProvidersAvailable
	}
	defer goapp.Estimate("fan-out")()
	res := &Result{Candidates: map[string]*api.Candidate{}, Failures: map[string]error{}}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a provider.Adapter) {
			defer wg.Done()
			c, err := runOne(ctx, a, audio)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				goapp.Log.Warn().Err(err).Str("provider", a.Name()).Bool("transient", utils.IsTransient(err)).Msg("provider failed")
				res.Failures[a.Name()] = err
				return
			}
			goapp.Log.Info().Str("provider", a.Name()).Int("segments", len(c.Segments)).Msg("provider done")
			res.Candidates[a.Name()] = c
		}(a)
	}
	wg.Wait()
	if len(res.Candidates) == 0 {
		return res, &AllFailedError{Failures: res.Failures}
	}
	return res, nil
}

func runOne(ctx context.Context, a provider.Adapter, audio provider.Audio) (res *api.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, &provider.Error{Provider: a.Name(), Msg: fmt.Sprintf("panic: %v", r)}
		}
	}()
	raw, err := a.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}
	text, err := a.ExtractText(raw)
	if err != nil {
		return nil, fmt.Errorf("can't extract text: %w", err)
	}
	segments, err := a.ExtractSegments(raw)
	if err != nil {
		return nil, fmt.Errorf("can't extract segments: %w", err)
	}
	segments, err = provider.NormalizeSegments(segments)
	if err != nil {
		return nil, &provider.Error{Provider: a.Name(), Msg: "wrong segments", Err: err}
	}
	audioPath, err := audio.Path(ctx)
	if err != nil {
		return nil, err
	}
	res = &api.Candidate{Provider: a.Name(), Text: text, Segments: segments, AudioPath: audioPath}
	if d, ok := a.(provider.Describer); ok {
		res.Language, res.Duration = d.Describe(raw)
	}
	return res, nil
}
