package messages

import (
	"strings"

	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "COUNCIL/"
	// Work queue name
	Work = st + "Work"
	// StatusChange queue name
	StatusChange = st + "StatusChange"

	// TypeTranscribe runs the transcription pipeline
	TypeTranscribe = "wrk-transcribe"
	// TypeStitch burns subtitles into the video
	TypeStitch = "wrk-stitch"

	typeSep = ":"
)

// TranscribeMessage starts the pipeline for a job, ID is the job id
type TranscribeMessage struct {
	amessages.QueueMessage
	VideoFile string `json:"videoFile,omitempty"`
}

// StitchMessage asks to render subtitles of the result, ID is the job id
type StitchMessage struct {
	amessages.QueueMessage
	ResultID string `json:"resultID,omitempty"`
}

// StatusMessage notifies about job status change
type StatusMessage struct {
	amessages.QueueMessage
	Status string `json:"status,omitempty"`
}

// WorkQueue returns the queue name for a work type
func WorkQueue(jobType string) string {
	return Work + typeSep + jobType
}

// Split returns queue and job type from a queue name, type equals queue if not provided
func Split(queue string) (string, string) {
	if i := strings.LastIndex(queue, typeSep); i > 0 && i < len(queue)-1 {
		return queue[:i], queue[i+1:]
	}
	return queue, queue
}
