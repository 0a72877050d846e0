package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/provider"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Name of the provider
const Name = "openai"

const (
	defaultURL   = "https://api.openai.com"
	defaultModel = "whisper-1"
)

// Segment is whisper verbose_json segment
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Response is whisper verbose_json response
type Response struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Client calls OpenAI audio transcription API
type Client struct {
	httpclient *http.Client
	url        string
	key        string
	model      string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates OpenAI adapter, missing key makes it unconfigured
func NewClient(c provider.Credentials) *Client {
	res := &Client{httpclient: provider.NewHTTPClient(), key: c.Key, url: c.URL, model: c.Model,
		timeout: c.Timeout, backoff: provider.NewBackoff}
	if res.url == "" {
		res.url = defaultURL
	}
	res.url = strings.TrimSuffix(res.url, "/")
	if res.model == "" {
		res.model = defaultModel
	}
	if res.timeout <= 0 {
		res.timeout = time.Minute * 10
	}
	return res
}

// Name returns provider name
func (c *Client) Name() string {
	return Name
}

// IsConfigured checks if key is set
func (c *Client) IsConfigured() bool {
	return c.key != ""
}

// Transcribe sends the extracted audio to whisper
func (c *Client) Transcribe(ctx context.Context, audio provider.Audio) (provider.RawResult, error) {
	defer goapp.Estimate("openai transcribe")()
	audioPath, err := audio.Path(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get audio: %w", err)
	}
	body, contentType, err := c.prepareBody(audioPath)
	if err != nil {
		return nil, &provider.Error{Provider: Name, Msg: "can't prepare request", Err: err}
	}
	urlStr := c.url + "/v1/audio/transcriptions"
	goapp.Log.Info().Str("url", urlStr).Str("model", c.model).Str("audio", audioPath).Msg("transcribe")
	res, err := goapp.InvokeWithBackoff(ctx, func() (*Response, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+c.key)
		var res Response
		if retry, err := provider.DoJSON(c.httpclient, Name, req, &res); err != nil {
			return nil, retry, err
		}
		return &res, false, nil
	}, c.backoff())
	if err != nil {
		return nil, utils.WrapIfTransient(err)
	}
	goapp.Log.Info().Str("language", res.Language).Int("segments", len(res.Segments)).Msg("openai done")
	return res, nil
}

func (c *Client) prepareBody(audioPath string) ([]byte, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("can't open audio: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("can't add file to request: %w", err)
	}
	if _, err = io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("can't add file content to request: %w", err)
	}
	for _, kv := range [][2]string{{"model", c.model}, {"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"}} {
		if err := writer.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("can't add param: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("can't close form: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

// ExtractText returns trimmed transcript
func (c *Client) ExtractText(raw provider.RawResult) (string, error) {
	r, err := toResponse(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(r.Text), nil
}

// ExtractSegments returns segments, already in seconds
func (c *Client) ExtractSegments(raw provider.RawResult) ([]api.Segment, error) {
	r, err := toResponse(raw)
	if err != nil {
		return nil, err
	}
	res := make([]api.Segment, 0, len(r.Segments))
	for _, s := range r.Segments {
		res = append(res, api.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	return res, nil
}

// Describe returns language and duration reported by whisper
func (c *Client) Describe(raw provider.RawResult) (string, float64) {
	r, err := toResponse(raw)
	if err != nil {
		return "", 0
	}
	return r.Language, r.Duration
}

func toResponse(raw provider.RawResult) (*Response, error) {
	res, ok := raw.(*Response)
	if !ok || res == nil {
		return nil, provider.WrongRawError(Name, raw)
	}
	return res, nil
}
