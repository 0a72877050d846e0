package api

import "strings"

const (
	// PrmFile upload form param for the video
	PrmFile = "file"
	// HeaderUserID is set by the gateway for authenticated calls
	HeaderUserID = "x-user-id"
)

// Segment is a timed span of transcript text, times in seconds
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Candidate is a normalized provider transcription of one job
type Candidate struct {
	Provider  string
	Text      string
	Segments  []Segment
	AudioPath string
	// Language and Duration are optional, filled if provider reports them
	Language string
	Duration float64
}

// WordCount returns count of whitespace separated words
func (c *Candidate) WordCount() int {
	return len(strings.Fields(c.Text))
}

// HasTimestamps indicates if candidate has timing data
func (c *Candidate) HasTimestamps() bool {
	return len(c.Segments) > 0
}

// Evaluation is judge metadata stored with the winning result
type Evaluation struct {
	SelectedProvider string                 `json:"selected_provider"`
	Confidence       string                 `json:"confidence"`
	ScoreDifference  float64                `json:"score_difference"`
	FinalReasoning   string                 `json:"final_reasoning,omitempty"`
	AudioAnalysis    map[string]interface{} `json:"audio_analysis,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

// Result is the transcription result returned by the API
type Result struct {
	ID             string      `json:"id"`
	CreatedAt      string      `json:"created_at"`
	OutputLanguage string      `json:"output_language"`
	UsedModel      string      `json:"used_model"`
	GeneratedText  string      `json:"generated_text"`
	Segments       []Segment   `json:"segments"`
	Evaluation     *Evaluation `json:"evaluation,omitempty"`
	VideoReady     bool        `json:"video_ready,omitempty"`
	StitchError    string      `json:"stitch_error,omitempty"`
}

// Job is the transcription job status returned by the API
type Job struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
