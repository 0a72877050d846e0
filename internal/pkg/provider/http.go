package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// NewHTTPClient returns http client tuned for long model calls
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 50
	res.MaxIdleConns = 20
	res.MaxIdleConnsPerHost = 10
	res.IdleConnTimeout = 90 * time.Second
	return res
}

// NewBackoff is the in-call retry policy for provider requests
func NewBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}

// DoJSON executes req and decodes json response into res.
// Returns retry flag for goapp.InvokeWithBackoff, errors are classified
func DoJSON(cl *http.Client, name string, req *http.Request, res interface{}) (bool, error) {
	goapp.Log.Debug().Str("provider", name).Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
	resp, err := cl.Do(req)
	if err != nil {
		return retry(Classify(name, 0, fmt.Errorf("can't call: %w", err)))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 200); err != nil {
		return retry(Classify(name, resp.StatusCode, fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)))
	}
	if res == nil {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return retry(Classify(name, 0, fmt.Errorf("can't decode response: %w", err)))
	}
	return false, nil
}

func retry(err error) (bool, error) {
	return utils.IsTransient(err), err
}
