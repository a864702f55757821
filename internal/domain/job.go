package domain

import "time"

// JobStatus enumerates persisted scheduler job states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusDone      JobStatus = "DONE"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// ScheduledJob is a persisted future invocation owned by the scheduler
// bridge. Jobs survive process restart; the claim protocol relies on
// LockedUntil so a crashed worker's job becomes claimable again after the
// lock lifetime elapses.
type ScheduledJob struct {
	ID             string
	Name           string
	WorkOrderID    string
	Payload        map[string]any
	RunAt          time.Time
	LockLifetime   time.Duration
	ConcurrencyCap int
	Status         JobStatus
	Attempts       int
	MaxAttempts    int
	LockedUntil    *time.Time
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
