package status

// Status represents transcription job status
type Status int

const (
	// Pending - job created, not started
	Pending Status = iota + 1
	// Processing - pipeline is running, retries stay here
	Processing
	// Success - final step, result persisted
	Success
	// Failed - final step
	Failed
)

var (
	statusName = map[Status]string{Pending: "PENDING", Processing: "PROCESSING",
		Success: "SUCCESS", Failed: "FAILED"}
	nameStatus = map[string]Status{"PENDING": Pending, "PROCESSING": Processing,
		"SUCCESS": Success, "FAILED": Failed}
	transitions = map[Status]map[Status]bool{
		Pending:    {Processing: true},
		Processing: {Processing: true, Success: true, Failed: true},
	}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// IsTerminal returns true for SUCCESS or FAILED
func (st Status) IsTerminal() bool {
	return st == Success || st == Failed
}

// CanTransition checks if job may move from one status to another
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}
