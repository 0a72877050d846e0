package persistence

import (
	"database/sql"
	"time"

	"github.com/airenas/council/internal/pkg/api"
)

type (

	// Job is a transcription job, table transcriptions
	Job struct {
		ID        string
		UserID    string
		Status    string
		Error     sql.NullString
		VideoFile string
		Created   time.Time
		Updated   time.Time
		// AttemptUntil is the lease of the running attempt
		AttemptUntil sql.NullTime
	}

	// Result is the winning transcription of a job, table transcription_results
	Result struct {
		ID             string
		JobID          string
		OutputLanguage string
		UsedModel      string
		GeneratedText  string
		Segments       []api.Segment
		Evaluation     *api.Evaluation
		VideoFile      sql.NullString
		StitchError    sql.NullString
		Created        time.Time
	}

	// JobFilter selects jobs for listing
	JobFilter struct {
		UserID string
		Status string
		From   time.Time
		To     time.Time
		Limit  int
		Offset int
	}
)
