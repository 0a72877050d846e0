package council

import (
	"fmt"
	"strings"

	"github.com/airenas/council/internal/pkg/api"
)

// AudioContext describes the judged audio
type AudioContext struct {
	File     string
	Size     int64
	Duration float64
	Language string
}

func (c AudioContext) String() string {
	res := []string{fmt.Sprintf("File: %s", c.File), fmt.Sprintf("Size: %.2f MB", float64(c.Size)/(1024*1024))}
	if c.Duration > 0 {
		res = append(res, fmt.Sprintf("Duration: %.1f seconds", c.Duration))
	}
	if c.Language != "" {
		res = append(res, fmt.Sprintf("Language: %s", c.Language))
	}
	return strings.Join(res, "\n")
}

// Labeled is an anonymized candidate
type Labeled struct {
	Label     string
	Candidate *api.Candidate
}

const systemInstructions = `You are an expert transcription evaluator.

You are given:
- An audio file
- One or more AI-generated transcriptions of that audio

Your responsibilities:
1. LISTEN carefully to the audio
2. COMPARE the transcription(s) against what is spoken
3. EVALUATE accuracy, completeness, and clarity
4. SELECT the best transcription if more than one is provided
5. JUSTIFY your decision with concrete examples
`

const singleInstructions = `EVALUATION INSTRUCTIONS:
Only ONE transcription is provided (Transcription %s).

Evaluate it against the audio for:
- Verbatim accuracy
- Missing or hallucinated words
- Punctuation and sentence boundaries
- Timestamp quality (if present)

Do NOT invent comparisons or rankings.
`

const multiInstructions = `EVALUATION INSTRUCTIONS:
%d transcriptions are provided (%s).

For EACH transcription:
- Assess accuracy against the audio
- Identify errors, omissions, and formatting issues

Then:
- Choose the BEST transcription overall
- Clearly explain why it is superior
`

const responseRules = `YOUR RESPONSE MUST BE IN THIS EXACT JSON FORMAT (respond ONLY with valid JSON, no other text):

Rules:
- Do NOT include markdown
- Do NOT include extra text outside JSON
- Be objective and specific

Schema:
`

const audioAnalysisSchema = `  "audio_analysis": {
    "duration_estimate": "X seconds",
    "audio_quality": "clear/moderate/poor",
    "language_detected": "English/Spanish/etc",
    "key_observations": "What you noticed about the audio (speaker count, accents, background noise, etc.)"
  },
`

const assessmentSchema = `  "%s": {
    "accuracy": {"score": 0, "reasoning": "Specific examples of correct/incorrect transcriptions", "errors_found": ["error 1"]},
    "punctuation": {"score": 0, "reasoning": "Evaluation of punctuation quality"},
    "formatting": {"score": 0, "reasoning": "Evaluation of formatting and structure"},
    "completeness": {"score": 0, "reasoning": "Assessment of missing or extra content", "missing_content": [], "hallucinated_content": []},
    "timestamps": {"score": 0, "reasoning": "Timestamp accuracy assessment"},
    "total_score": 0,
    "strengths": ["strength 1"],
    "weaknesses": ["weakness 1"]
  },
`

const comparisonSchema = `  "comparison": {
    "winner": "%s",
    "confidence": "low/medium/high",
    "score_difference": 0,
    "deciding_factors": ["factor 1"]
  },
  "final_reasoning": "Comprehensive explanation of why the winner was chosen based on your listening experience",
  "recommendation": "Any suggestions for improving the transcription(s)"
`

// BuildPrompt renders the judge prompt for labeled candidates, scores are 0-10
func BuildPrompt(audio AudioContext, labeled []Labeled) string {
	sections := []string{systemInstructions, "AUDIO CONTEXT:\n" + audio.String() + "\n"}
	labels := make([]string, 0, len(labeled))
	for _, l := range labeled {
		labels = append(labels, l.Label)
		sections = append(sections, fmt.Sprintf("TRANSCRIPTION %s:\n\nWord Count: %d\nHas Timestamps: %t\n\nText:\n%s\n",
			l.Label, l.Candidate.WordCount(), l.Candidate.HasTimestamps(), l.Candidate.Text))
	}
	if len(labels) == 1 {
		sections = append(sections, fmt.Sprintf(singleInstructions, labels[0]))
	} else {
		sections = append(sections, fmt.Sprintf(multiInstructions, len(labels), strings.Join(labels, ", ")))
	}
	sections = append(sections, responseRules+schema(labels))
	return strings.Join(sections, "\n")
}

func schema(labels []string) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	sb.WriteString(audioAnalysisSchema)
	for _, l := range labels {
		sb.WriteString(fmt.Sprintf(assessmentSchema, l))
	}
	sb.WriteString(fmt.Sprintf(comparisonSchema, strings.Join(labels, "/")))
	sb.WriteString("}\n")
	return sb.String()
}
