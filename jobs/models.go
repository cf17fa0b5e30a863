package jobs

import "time"

// Status enumerates job lifecycle states persisted in Postgres.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusLeased       Status = "leased"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusDeadLettered Status = "dead_lettered"
)

// TypeProcessWaivers is the only job type the waiver pipeline enqueues.
const TypeProcessWaivers = "process_waivers"

// Job is one queued processing run for a league.
type Job struct {
	ID          string
	LeagueID    string
	Type        string
	Force       bool
	Status      Status
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LastError   *string
	Result      []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
