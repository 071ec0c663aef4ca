package types

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/tickqueue/internal/state"
)

// Job is a unit of deferred work persisted in the job store.
type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       state.JobStatus `json:"status"`
	Priority     int             `json:"priority"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	NextRetryAt  time.Time       `json:"next_retry_at"`
	ErrorMessage sql.NullString  `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedBy    sql.NullString  `json:"-"`
}

// JobOptions tunes a single enqueue call. Zero values fall back to defaults.
type JobOptions struct {
	Priority    int
	MaxAttempts int
	CreatedBy   string
	RunAt       time.Time
}

// JobStatusView is the read model handed to UI layers polling a job.
type JobStatusView struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Status       state.JobStatus `json:"status"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"maxAttempts"`
	ErrorMessage *string         `json:"errorMessage"`
	StartedAt    *time.Time      `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt"`
}

func (j *Job) View() JobStatusView {
	v := JobStatusView{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.ErrorMessage.Valid {
		msg := j.ErrorMessage.String
		v.ErrorMessage = &msg
	}
	return v
}

// Stats holds job counts keyed by status. Every status is present.
type Stats map[state.JobStatus]int

// TickResult summarises one bounded batch run.
type TickResult struct {
	Processed int      `json:"processed"`
	JobIDs    []string `json:"jobIds"`
	Errors    []string `json:"errors,omitempty"`
	Stats     Stats    `json:"stats"`
}

// EnqueueRequest is the wire shape for enqueueing a job over HTTP or the broker.
type EnqueueRequest struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority,omitempty"`
	MaxAttempts int             `json:"maxAttempts,omitempty"`
	CreatedBy   string          `json:"createdBy,omitempty"`
}

func (r EnqueueRequest) Options() JobOptions {
	return JobOptions{
		Priority:    r.Priority,
		MaxAttempts: r.MaxAttempts,
		CreatedBy:   r.CreatedBy,
	}
}
