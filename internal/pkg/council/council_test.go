package council

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type modelMock struct{ mock.Mock }

func (m *modelMock) Generate(ctx context.Context, req *Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

const twoResp = `{
 "audio_analysis": {"audio_quality": "clear", "language_detected": "English"},
 "A": {"accuracy": {"score": 8}, "punctuation": {"score": 7}, "formatting": {"score": 8},
       "completeness": {"score": 9}, "timestamps": {"score": 8}, "total_score": 100},
 "B": {"accuracy": {"score": 9}, "punctuation": {"score": 8}, "formatting": {"score": 7},
       "completeness": {"score": 8}, "timestamps": {"score": 7}, "total_score": 1},
 "comparison": {"winner": "B", "confidence": "high", "score_difference": 42},
 "final_reasoning": "B is better"
}`

func TestComposite(t *testing.T) {
	tests := []struct {
		name string
		a    Assessment
		want float64
	}{
		{name: "zero", a: Assessment{}, want: 0},
		{name: "max", a: Assessment{Accuracy: Criterion{Score: 10}, Punctuation: Criterion{Score: 10},
			Formatting: Criterion{Score: 10}, Completeness: Criterion{Score: 10}, Timestamps: Criterion{Score: 10}}, want: 10},
		{name: "mixed", a: Assessment{Accuracy: Criterion{Score: 8}, Punctuation: Criterion{Score: 7},
			Formatting: Criterion{Score: 8}, Completeness: Criterion{Score: 9}, Timestamps: Criterion{Score: 8}}, want: 8.05},
		{name: "accuracy only", a: Assessment{Accuracy: Criterion{Score: 7}}, want: 2.8},
		{name: "rounded", a: Assessment{Accuracy: Criterion{Score: 7.33}, Timestamps: Criterion{Score: 3.3}}, want: 3.26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Composite())
		})
	}
	assert.InDelta(t, 1.0, WeightAccuracy+WeightPunctuation+WeightFormatting+WeightCompleteness+WeightTimestamps, 1e-9)
}

func TestParseVerdict(t *testing.T) {
	v := ParseVerdict(twoResp, []string{"A", "B"})
	require.False(t, v.Degraded())
	assert.Equal(t, 8.05, v.Assessments["A"].TotalScore)
	assert.Equal(t, 8.15, v.Assessments["B"].TotalScore)
	assert.Equal(t, "B", v.Comparison.Winner)
	assert.Equal(t, "high", v.Comparison.Confidence)
	assert.Equal(t, 0.1, v.Comparison.ScoreDifference)
	assert.Equal(t, "B is better", v.FinalReasoning)
	assert.Equal(t, "clear", v.AudioAnalysis["audio_quality"])
}

func TestParseVerdict_CodeFence(t *testing.T) {
	v := ParseVerdict("```json\n"+twoResp+"\n```", []string{"A", "B"})
	require.False(t, v.Degraded())
	assert.Equal(t, "B", v.Comparison.Winner)

	v = ParseVerdict("Here is my evaluation:\n"+twoResp+"\nThanks", []string{"A", "B"})
	require.False(t, v.Degraded())
	assert.Equal(t, 0.1, v.Comparison.ScoreDifference)
}

func TestParseVerdict_Single(t *testing.T) {
	v := ParseVerdict(`{"A": {"accuracy": {"score": 5}}, "comparison": {"winner": "A", "score_difference": 3}}`, []string{"A"})
	require.False(t, v.Degraded())
	assert.Equal(t, 2.0, v.Assessments["A"].TotalScore)
	assert.Equal(t, 0.0, v.Comparison.ScoreDifference)
	assert.Equal(t, ConfidenceLow, v.Comparison.Confidence)
}

func TestParseVerdict_UnknownWinner(t *testing.T) {
	v := ParseVerdict(strings.Replace(twoResp, `"winner": "B"`, `"winner": "C"`, 1), []string{"A", "B"})
	require.False(t, v.Degraded())
	assert.Equal(t, "A", v.Comparison.Winner)
	assert.Equal(t, 0.1, v.Comparison.ScoreDifference)
}

func TestParseVerdict_Degraded(t *testing.T) {
	long := strings.Repeat("x", 1500)
	tests := []struct {
		name   string
		text   string
		labels []string
		winner string
		raw    int
	}{
		{name: "not json", text: "I think B is better", labels: []string{"A", "B"}, winner: "A", raw: 19},
		{name: "empty", text: "", labels: []string{"A", "B"}, winner: "A", raw: 0},
		{name: "long", text: long, labels: []string{"A", "B"}, winner: "A", raw: 1000},
		{name: "missing label", text: `{"A": {"accuracy": {"score": 5}}}`, labels: []string{"A", "B"}, winner: "A", raw: 33},
		{name: "wrong score type", text: `{"A": {"accuracy": {"score": "five"}}}`, labels: []string{"A"}, winner: "A", raw: 38},
		{name: "no labels", text: twoResp, labels: nil, winner: "", raw: len(twoResp)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseVerdict(tt.text, tt.labels)
			assert.True(t, v.Degraded())
			assert.NotEmpty(t, v.Error)
			assert.Equal(t, tt.winner, v.Comparison.Winner)
			assert.Equal(t, ConfidenceLow, v.Comparison.Confidence)
			assert.Equal(t, tt.raw, len([]rune(v.Raw)))
		})
	}
}

func TestVerdict_Evaluation(t *testing.T) {
	v := ParseVerdict(twoResp, []string{"A", "B"})
	e := v.Evaluation("assemblyai")
	assert.Equal(t, &api.Evaluation{SelectedProvider: "assemblyai", Confidence: "high", ScoreDifference: 0.1,
		FinalReasoning: "B is better", AudioAnalysis: v.AudioAnalysis}, e)
}

func TestLabel(t *testing.T) {
	c := map[string]*api.Candidate{"openai": {Provider: "openai"}, "assemblyai": {Provider: "assemblyai"},
		"zeta": {Provider: "zeta"}, "beta": {Provider: "beta"}}
	res := Label(c, []string{"openai", "missing", "assemblyai", "openai"})
	require.Equal(t, 4, len(res))
	got := make([]string, 0)
	for _, l := range res {
		got = append(got, l.Label+":"+l.Candidate.Provider)
	}
	assert.Equal(t, []string{"A:openai", "B:assemblyai", "C:beta", "D:zeta"}, got)
	assert.Empty(t, Label(nil, []string{"openai"}))
}

func TestLabelName(t *testing.T) {
	assert.Equal(t, "A", labelName(0))
	assert.Equal(t, "Z", labelName(25))
	assert.Equal(t, "AA", labelName(26))
	assert.Equal(t, "AB", labelName(27))
}

func TestMimeType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/a/b.wav", want: "audio/wav"},
		{in: "/a/b.MP3", want: "audio/mpeg"},
		{in: "b.aac", want: "audio/aac"},
		{in: "b.ogg", want: "audio/ogg"},
		{in: "b.flac", want: "audio/flac"},
		{in: "b.m4a", want: "audio/wav"},
		{in: "b", want: "audio/wav"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MimeType(tt.in))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	a := AudioContext{File: "v.wav", Size: 1572864, Duration: 12.5, Language: "en"}
	one := BuildPrompt(a, []Labeled{{Label: "A", Candidate: &api.Candidate{Text: "labas rytas"}}})
	assert.Contains(t, one, "AUDIO CONTEXT:\nFile: v.wav\nSize: 1.50 MB\nDuration: 12.5 seconds\nLanguage: en")
	assert.Contains(t, one, "TRANSCRIPTION A:")
	assert.Contains(t, one, "Word Count: 2")
	assert.Contains(t, one, "Has Timestamps: false")
	assert.Contains(t, one, "Only ONE transcription is provided (Transcription A)")
	assert.Contains(t, one, "Do NOT invent comparisons or rankings.")
	assert.NotContains(t, one, "Choose the BEST transcription overall")
	assert.NotContains(t, one, `"B": {`)

	two := BuildPrompt(AudioContext{File: "v.wav"}, []Labeled{{Label: "A", Candidate: &api.Candidate{Text: "a"}},
		{Label: "B", Candidate: &api.Candidate{Text: "b", Segments: []api.Segment{{End: 1}}}}})
	assert.Contains(t, two, "2 transcriptions are provided (A, B)")
	assert.Contains(t, two, "Choose the BEST transcription overall")
	assert.Contains(t, two, "Has Timestamps: true")
	assert.Contains(t, two, `"A": {`)
	assert.Contains(t, two, `"B": {`)
	assert.Contains(t, two, `"winner": "A/B"`)
	assert.NotContains(t, two, "Duration:")
	assert.NotContains(t, two, "Only ONE transcription")
}

func writeAudio(t *testing.T) string {
	t.Helper()
	res := filepath.Join(t.TempDir(), "v.wav")
	require.Nil(t, os.WriteFile(res, []byte("RIFF"), 0600))
	return res
}

func TestEvaluate(t *testing.T) {
	m := &modelMock{}
	m.On("Generate", mock.Anything, mock.Anything).Return(twoResp, nil)
	j, err := NewJudge(m)
	require.Nil(t, err)
	labeled := []Labeled{{Label: "A", Candidate: &api.Candidate{Provider: "openai", Text: "a", Language: "en"}},
		{Label: "B", Candidate: &api.Candidate{Provider: "assemblyai", Text: "b"}}}
	v, err := j.Evaluate(test.Ctx(t), writeAudio(t), labeled)
	require.Nil(t, err)
	assert.Equal(t, "B", v.Comparison.Winner)
	assert.Equal(t, "assemblyai", Winner(labeled, v).Candidate.Provider)
	req := m.Calls[0].Arguments.Get(1).(*Request)
	assert.Equal(t, []byte("RIFF"), req.Audio)
	assert.Equal(t, "audio/wav", req.MimeType)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Contains(t, req.Prompt, "Language: en")
}

func TestEvaluate_Degraded(t *testing.T) {
	m := &modelMock{}
	m.On("Generate", mock.Anything, mock.Anything).Return("sorry", nil)
	j, _ := NewJudge(m)
	labeled := []Labeled{{Label: "A", Candidate: &api.Candidate{Provider: "openai"}},
		{Label: "B", Candidate: &api.Candidate{Provider: "assemblyai"}}}
	v, err := j.Evaluate(test.Ctx(t), writeAudio(t), labeled)
	require.Nil(t, err)
	assert.True(t, v.Degraded())
	assert.Equal(t, "openai", Winner(labeled, v).Candidate.Provider)
}

func TestEvaluate_Fail(t *testing.T) {
	m := &modelMock{}
	m.On("Generate", mock.Anything, mock.Anything).Return("", fmt.Errorf("olia"))
	j, _ := NewJudge(m)
	_, err := j.Evaluate(test.Ctx(t), writeAudio(t), []Labeled{{Label: "A", Candidate: &api.Candidate{}}})
	assert.NotNil(t, err)

	_, err = j.Evaluate(test.Ctx(t), writeAudio(t), nil)
	assert.True(t, errors.Is(err, ErrInsufficientCandidates))

	_, err = j.Evaluate(test.Ctx(t), "/none/v.wav", []Labeled{{Label: "A", Candidate: &api.Candidate{}}})
	assert.NotNil(t, err)
	m.AssertNumberOfCalls(t, "Generate", 1)
}

func TestNewJudge(t *testing.T) {
	_, err := NewJudge(nil)
	assert.NotNil(t, err)
}
