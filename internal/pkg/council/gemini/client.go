package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/airenas/council/internal/pkg/council"
	"github.com/airenas/council/internal/pkg/provider"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Name of the judge service
const Name = "gemini"

const (
	defaultURL   = "https://generativelanguage.googleapis.com"
	defaultModel = "gemini-2.5-flash"
)

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	InlineData *inlineData `json:"inline_data,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Client calls Gemini generateContent API
type Client struct {
	httpclient *http.Client
	url        string
	key        string
	model      string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates gemini client
func NewClient(c provider.Credentials) (*Client, error) {
	if c.Key == "" {
		return nil, fmt.Errorf("no gemini key")
	}
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
		res.timeout = time.Minute * 5
	}
	goapp.Log.Info().Str("url", res.url).Str("model", res.model).Msg("gemini")
	return res, nil
}

// Generate sends audio and prompt, returns concatenated response text
func (c *Client) Generate(ctx context.Context, req *council.Request) (string, error) {
	b, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: req.MimeType, Data: base64.StdEncoding.EncodeToString(req.Audio)}},
			{Text: req.Prompt},
		}}},
		GenerationConfig: generationConfig{Temperature: req.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("can't marshal: %w", err)
	}
	urlStr := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.url, c.model)
	res, err := goapp.InvokeWithBackoff(ctx, func() (*generateResponse, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(b))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.key)
		var res generateResponse
		if retry, err := provider.DoJSON(c.httpclient, Name, req, &res); err != nil {
			return nil, retry, err
		}
		return &res, false, nil
	}, c.backoff())
	if err != nil {
		return "", utils.WrapIfTransient(err)
	}
	return responseText(res)
}

func responseText(resp *generateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		msg := "no candidates in response"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg = "blocked: " + resp.PromptFeedback.BlockReason
		}
		return "", &provider.Error{Provider: Name, Msg: msg}
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
