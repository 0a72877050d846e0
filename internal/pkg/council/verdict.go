package council

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/airenas/council/internal/pkg/api"
)

// Criterion weights of the composite score
const (
	WeightAccuracy     = 0.40
	WeightPunctuation  = 0.15
	WeightFormatting   = 0.15
	WeightCompleteness = 0.20
	WeightTimestamps   = 0.10
)

// ConfidenceLow is used for degraded verdicts
const ConfidenceLow = "low"

const maxRaw = 1000

// Criterion is one scored aspect of a transcription
type Criterion struct {
	Score               float64  `json:"score"`
	Reasoning           string   `json:"reasoning,omitempty"`
	ErrorsFound         []string `json:"errors_found,omitempty"`
	MissingContent      []string `json:"missing_content,omitempty"`
	HallucinatedContent []string `json:"hallucinated_content,omitempty"`
}

// Assessment is the judge's evaluation of one labeled transcription
type Assessment struct {
	Accuracy     Criterion `json:"accuracy"`
	Punctuation  Criterion `json:"punctuation"`
	Formatting   Criterion `json:"formatting"`
	Completeness Criterion `json:"completeness"`
	Timestamps   Criterion `json:"timestamps"`
	TotalScore   float64   `json:"total_score"`
	Strengths    []string  `json:"strengths,omitempty"`
	Weaknesses   []string  `json:"weaknesses,omitempty"`
}

// Composite returns weighted score rounded to 2 places
func (a *Assessment) Composite() float64 {
	return round2(a.Accuracy.Score*WeightAccuracy + a.Punctuation.Score*WeightPunctuation +
		a.Formatting.Score*WeightFormatting + a.Completeness.Score*WeightCompleteness +
		a.Timestamps.Score*WeightTimestamps)
}

// Comparison is the judge's decision
type Comparison struct {
	Winner          string   `json:"winner"`
	Confidence      string   `json:"confidence"`
	ScoreDifference float64  `json:"score_difference"`
	DecidingFactors []string `json:"deciding_factors,omitempty"`
}

// Verdict is the parsed judge response
type Verdict struct {
	AudioAnalysis  map[string]interface{}
	Assessments    map[string]*Assessment
	Comparison     Comparison
	FinalReasoning string
	Recommendation string
	// Error and Raw are set for degraded verdicts only
	Error string
	Raw   string
}

// Degraded indicates the response could not be parsed
func (v *Verdict) Degraded() bool {
	return v.Error != ""
}

// Evaluation returns metadata stored with the winning result
func (v *Verdict) Evaluation(provider string) *api.Evaluation {
	return &api.Evaluation{
		SelectedProvider: provider,
		Confidence:       v.Comparison.Confidence,
		ScoreDifference:  v.Comparison.ScoreDifference,
		FinalReasoning:   v.FinalReasoning,
		AudioAnalysis:    v.AudioAnalysis,
		Error:            v.Error,
	}
}

type response struct {
	AudioAnalysis  map[string]interface{} `json:"audio_analysis"`
	Comparison     *Comparison            `json:"comparison"`
	FinalReasoning string                 `json:"final_reasoning"`
	Recommendation string                 `json:"recommendation"`
}

// ParseVerdict parses judge text for the labels, never fails:
// a malformed response gives a low confidence verdict for the first label
func ParseVerdict(text string, labels []string) *Verdict {
	res, err := parse(text, labels)
	if err != nil {
		return degraded(text, labels, err)
	}
	return res
}

func parse(text string, labels []string) (*Verdict, error) {
	if len(labels) == 0 {
		return nil, errors.New("no labels")
	}
	var all map[string]json.RawMessage
	if err := decodeJSON(text, &all); err != nil {
		return nil, err
	}
	var resp response
	if err := decodeJSON(text, &resp); err != nil {
		return nil, err
	}
	res := &Verdict{AudioAnalysis: resp.AudioAnalysis, FinalReasoning: resp.FinalReasoning,
		Recommendation: resp.Recommendation, Assessments: map[string]*Assessment{}}
	for _, l := range labels {
		raw, ok := all[l]
		if !ok {
			return nil, fmt.Errorf("no assessment for %s", l)
		}
		var a Assessment
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("wrong assessment for %s: %w", l, err)
		}
		a.TotalScore = a.Composite()
		res.Assessments[l] = &a
	}
	if resp.Comparison != nil {
		res.Comparison = *resp.Comparison
	}
	if !contains(labels, res.Comparison.Winner) {
		res.Comparison.Winner = labels[0]
	}
	if res.Comparison.Confidence == "" {
		res.Comparison.Confidence = ConfidenceLow
	}
	res.Comparison.ScoreDifference = scoreGap(res.Assessments, res.Comparison.Winner)
	return res, nil
}

// scoreGap is |winner - best other|, 0 for a single candidate
func scoreGap(assessments map[string]*Assessment, winner string) float64 {
	w := assessments[winner].TotalScore
	best, found := 0.0, false
	for l, a := range assessments {
		if l == winner {
			continue
		}
		if !found || a.TotalScore > best {
			best, found = a.TotalScore, true
		}
	}
	if !found {
		return 0
	}
	return round2(math.Abs(w - best))
}

func degraded(text string, labels []string, err error) *Verdict {
	res := &Verdict{Comparison: Comparison{Confidence: ConfidenceLow}, Error: err.Error(), Raw: text}
	if len(labels) > 0 {
		res.Comparison.Winner = labels[0]
	}
	if r := []rune(text); len(r) > maxRaw {
		res.Raw = string(r[:maxRaw])
	}
	return res
}

func decodeJSON(content string, target interface{}) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty response")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}
	sanitized := extractObject(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (response: %s)", directErr, snippet(trimmed))
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w (sanitized response: %s)", err, snippet(sanitized))
	}
	return nil
}

func extractObject(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" || trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if r := []rune(clean); len(r) > 160 {
		return string(r[:160]) + "..."
	}
	return clean
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
