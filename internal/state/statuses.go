package state

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether a job in this status may never change again.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var AllStatuses = []JobStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusProcessing},
	{From: StatusProcessing, To: StatusCompleted},
	{From: StatusProcessing, To: StatusPending},
	{From: StatusProcessing, To: StatusFailed},
	{From: StatusPending, To: StatusCancelled},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Parse converts a raw status string, returning false for unknown values.
func Parse(raw string) (JobStatus, bool) {
	for _, s := range AllStatuses {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}
