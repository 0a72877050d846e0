package gemini

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/airenas/council/internal/pkg/council"
	"github.com/airenas/council/internal/pkg/provider"
	"github.com/airenas/council/internal/pkg/test"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestServer(t *testing.T, code int, resp string, check func(*http.Request)) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		if check != nil {
			check(req)
		}
		rw.WriteHeader(code)
		_, _ = rw.Write([]byte(resp))
	}))
	t.Cleanup(func() { server.Close() })
	res, err := NewClient(provider.Credentials{Key: "k", URL: server.URL})
	require.Nil(t, err)
	res.httpclient = server.Client()
	res.timeout = time.Second
	res.backoff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	return res
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(provider.Credentials{})
	assert.NotNil(t, err)
	c, err := NewClient(provider.Credentials{Key: "k"})
	require.Nil(t, err)
	assert.Equal(t, defaultModel, c.model)
	assert.Equal(t, defaultURL, c.url)
}

func TestGenerate(t *testing.T) {
	c := initTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"{\"a\":"},{"text":"1}"}]}}]}`,
		func(req *http.Request) {
			assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", req.URL.Path)
			assert.Equal(t, "k", req.Header.Get("x-goog-api-key"))
			var gr generateRequest
			require.Nil(t, json.NewDecoder(req.Body).Decode(&gr))
			require.Equal(t, 1, len(gr.Contents))
			require.Equal(t, 2, len(gr.Contents[0].Parts))
			assert.Equal(t, "audio/wav", gr.Contents[0].Parts[0].InlineData.MimeType)
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("RIFF")), gr.Contents[0].Parts[0].InlineData.Data)
			assert.Equal(t, "prompt", gr.Contents[0].Parts[1].Text)
			assert.Equal(t, 0.3, gr.GenerationConfig.Temperature)
		})
	res, err := c.Generate(test.Ctx(t), &council.Request{Audio: []byte("RIFF"), MimeType: "audio/wav",
		Prompt: "prompt", Temperature: council.Temperature})
	require.Nil(t, err)
	assert.Equal(t, `{"a":1}`, res)
}

func TestGenerate_Fail(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		resp      string
		transient bool
	}{
		{name: "auth", code: http.StatusForbidden, resp: `{}`, transient: false},
		{name: "overloaded", code: http.StatusServiceUnavailable, resp: `{}`, transient: true},
		{name: "rate", code: http.StatusTooManyRequests, resp: `{}`, transient: true},
		{name: "no candidates", code: http.StatusOK, resp: `{"promptFeedback":{"blockReason":"SAFETY"}}`, transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := initTestServer(t, tt.code, tt.resp, nil)
			_, err := c.Generate(test.Ctx(t), &council.Request{Audio: []byte("RIFF")})
			require.NotNil(t, err)
			assert.Equal(t, tt.transient, utils.IsTransient(err))
			if !tt.transient {
				var pErr *provider.Error
				assert.True(t, errors.As(err, &pErr))
			}
		})
	}
}
