package council

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/go-app/pkg/goapp"
)

// Temperature used for judge calls
const Temperature = 0.3

// ErrInsufficientCandidates no candidates to judge
var ErrInsufficientCandidates = errors.New("no candidates to evaluate")

var mimeTypes = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
}

// Request to the arbitration model
type Request struct {
	Audio       []byte
	MimeType    string
	Prompt      string
	Temperature float64
}

// Model is an external audio capable LLM
type Model interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// Judge selects the best candidate by asking the model
type Judge struct {
	model Model
}

// NewJudge creates judge
func NewJudge(model Model) (*Judge, error) {
	if model == nil {
		return nil, fmt.Errorf("no model")
	}
	return &Judge{model: model}, nil
}

// MimeType returns audio mime type by extension, audio/wav by default
func MimeType(path string) string {
	if res, ok := mimeTypes[strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))]; ok {
		return res
	}
	return "audio/wav"
}

// Label anonymizes candidates: A, B, ... in the given order,
// names missing in order follow alphabetically
func Label(candidates map[string]*api.Candidate, order []string) []Labeled {
	names := make([]string, 0, len(candidates))
	seen := map[string]bool{}
	for _, n := range order {
		if _, ok := candidates[n]; ok && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	rest := make([]string, 0)
	for n := range candidates {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)
	res := make([]Labeled, 0, len(names))
	for i, n := range names {
		res = append(res, Labeled{Label: labelName(i), Candidate: candidates[n]})
	}
	return res
}

func labelName(i int) string {
	res := ""
	for i++; i > 0; i = (i - 1) / 26 {
		res = string(rune('A'+(i-1)%26)) + res
	}
	return res
}

// Evaluate asks the model to judge the candidates against the audio
func (j *Judge) Evaluate(ctx context.Context, audioPath string, labeled []Labeled) (*Verdict, error) {
	if len(labeled) == 0 {
		return nil, ErrInsufficientCandidates
	}
	defer goapp.Estimate("judge")()
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("can't read audio: %w", err)
	}
	audio := AudioContext{File: filepath.Base(audioPath), Size: int64(len(data))}
	for _, l := range labeled {
		if audio.Duration == 0 {
			audio.Duration = l.Candidate.Duration
		}
		if audio.Language == "" {
			audio.Language = l.Candidate.Language
		}
	}
	labels := make([]string, 0, len(labeled))
	for _, l := range labeled {
		labels = append(labels, l.Label)
	}
	goapp.Log.Info().Strs("labels", labels).Str("audio", audio.File).Msg("judge evaluates")
	text, err := j.model.Generate(ctx, &Request{Audio: data, MimeType: MimeType(audioPath),
		Prompt: BuildPrompt(audio, labeled), Temperature: Temperature})
	if err != nil {
		return nil, fmt.Errorf("can't evaluate: %w", err)
	}
	res := ParseVerdict(text, labels)
	if res.Degraded() {
		goapp.Log.Warn().Str("error", res.Error).Str("raw", goapp.Sanitize(snippet(res.Raw))).Msg("degraded verdict")
	}
	goapp.Log.Info().Str("winner", res.Comparison.Winner).Str("confidence", res.Comparison.Confidence).
		Float64("gap", res.Comparison.ScoreDifference).Msg("verdict")
	return res, nil
}

// Winner returns winning labeled candidate
func Winner(labeled []Labeled, v *Verdict) *Labeled {
	for i := range labeled {
		if labeled[i].Label == v.Comparison.Winner {
			return &labeled[i]
		}
	}
	if len(labeled) > 0 {
		return &labeled[0]
	}
	return nil
}
