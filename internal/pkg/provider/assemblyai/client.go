package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/provider"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Name of the provider
const Name = "assemblyai"

const (
	defaultURL = "https://api.assemblyai.com"

	statusCompleted = "completed"
	statusError     = "error"
)

// Word is a timed word, times in ms
type Word struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// Transcript is AssemblyAI transcript resource
type Transcript struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Text          string  `json:"text"`
	Error         string  `json:"error,omitempty"`
	LanguageCode  string  `json:"language_code,omitempty"`
	AudioDuration float64 `json:"audio_duration,omitempty"`
	Words         []Word  `json:"words,omitempty"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL     string   `json:"audio_url"`
	SpeechModels []string `json:"speech_models"`
}

// Client calls AssemblyAI API: upload, create transcript, poll
type Client struct {
	httpclient   *http.Client
	url          string
	key          string
	timeout      time.Duration
	callTimeout  time.Duration
	pollInterval time.Duration
	backoff      func() backoff.BackOff
}

// NewClient creates AssemblyAI adapter, missing key makes it unconfigured
func NewClient(c provider.Credentials) *Client {
	res := &Client{httpclient: provider.NewHTTPClient(), key: c.Key, url: c.URL, timeout: c.Timeout,
		pollInterval: c.PollInterval, callTimeout: time.Minute * 5, backoff: provider.NewBackoff}
	if res.url == "" {
		res.url = defaultURL
	}
	res.url = strings.TrimSuffix(res.url, "/")
	if res.timeout <= 0 {
		res.timeout = time.Minute * 30
	}
	if res.pollInterval <= 0 {
		res.pollInterval = time.Second * 3
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

// Transcribe uploads audio, starts transcription and waits for the final status
func (c *Client) Transcribe(ctx context.Context, audio provider.Audio) (provider.RawResult, error) {
	defer goapp.Estimate("assemblyai transcribe")()
	audioPath, err := audio.Path(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get audio: %w", err)
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, &provider.Error{Provider: Name, Msg: "can't read audio", Err: err}
	}
	ctx, cf := context.WithTimeout(ctx, c.timeout)
	defer cf()

	var up uploadResponse
	if err := c.call(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", data, &up); err != nil {
		return nil, err
	}
	if up.UploadURL == "" {
		return nil, &provider.Error{Provider: Name, Msg: "no upload_url in response"}
	}
	b, err := json.Marshal(transcriptRequest{AudioURL: up.UploadURL, SpeechModels: []string{"universal"}})
	if err != nil {
		return nil, &provider.Error{Provider: Name, Err: err}
	}
	var tr Transcript
	if err := c.call(ctx, http.MethodPost, "/v2/transcript", "application/json", b, &tr); err != nil {
		return nil, err
	}
	if tr.ID == "" {
		return nil, &provider.Error{Provider: Name, Msg: "no transcript id in response"}
	}
	goapp.Log.Info().Str("ID", tr.ID).Msg("assemblyai transcript created")
	res, err := c.wait(ctx, tr.ID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) wait(ctx context.Context, id string) (*Transcript, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		var tr Transcript
		if err := c.call(ctx, http.MethodGet, "/v2/transcript/"+id, "", nil, &tr); err != nil {
			return nil, err
		}
		goapp.Log.Debug().Str("ID", id).Str("status", tr.Status).Msg("poll")
		switch tr.Status {
		case statusCompleted:
			return &tr, nil
		case statusError:
			return nil, &provider.Error{Provider: Name, Msg: tr.Error}
		}
		select {
		case <-ctx.Done():
			return nil, utils.NewErrTransient(fmt.Errorf("%s: wait for %s: %w", Name, id, ctx.Err()))
		case <-ticker.C:
		}
	}
}

func (c *Client) call(ctx context.Context, method, path, contentType string, body []byte, res interface{}) error {
	_, err := goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.callTimeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, method, c.url+path, bytes.NewReader(body))
		if err != nil {
			return nil, false, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Authorization", c.key)
		retry, err := provider.DoJSON(c.httpclient, Name, req, res)
		return nil, retry, err
	}, c.backoff())
	return utils.WrapIfTransient(err)
}

// ExtractText returns trimmed transcript
func (c *Client) ExtractText(raw provider.RawResult) (string, error) {
	t, err := toTranscript(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(t.Text), nil
}

// ExtractSegments converts words to segments in seconds
func (c *Client) ExtractSegments(raw provider.RawResult) ([]api.Segment, error) {
	t, err := toTranscript(raw)
	if err != nil {
		return nil, err
	}
	res := make([]api.Segment, 0, len(t.Words))
	for _, w := range t.Words {
		res = append(res, api.Segment{Start: float64(w.Start) / 1000, End: float64(w.End) / 1000, Text: w.Text})
	}
	return res, nil
}

// Describe returns language code and duration
func (c *Client) Describe(raw provider.RawResult) (string, float64) {
	t, err := toTranscript(raw)
	if err != nil {
		return "", 0
	}
	return t.LanguageCode, t.AudioDuration
}

func toTranscript(raw provider.RawResult) (*Transcript, error) {
	res, ok := raw.(*Transcript)
	if !ok || res == nil {
		return nil, provider.WrongRawError(Name, raw)
	}
	return res, nil
}
