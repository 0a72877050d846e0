package provider

import (
	"context"

	"github.com/airenas/council/internal/pkg/api"
)

// RawResult is provider specific transcription response
type RawResult interface{}

// Audio is the audio source given to adapters
type Audio interface {
	VideoPath() string
	// Path returns derived audio file, extracted once per video
	Path(ctx context.Context) (string, error)
}

// Adapter is a transcription provider
type Adapter interface {
	Name() string
	// IsConfigured checks credentials only, never calls the provider
	IsConfigured() bool
	Transcribe(ctx context.Context, audio Audio) (RawResult, error)
	ExtractText(raw RawResult) (string, error)
	ExtractSegments(raw RawResult) ([]api.Segment, error)
}

// Describer is implemented by adapters reporting audio metadata
type Describer interface {
	// Describe returns detected language and audio duration in seconds, zero values if unknown
	Describe(raw RawResult) (string, float64)
}
