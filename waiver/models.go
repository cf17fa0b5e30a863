package waiver

import "time"

// Status is the claim lifecycle. Every state other than PENDING is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuted  Status = "executed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether a claim in this status can never change again.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// CanTransition enforces the claim state machine: PENDING may move to any
// terminal state, terminal states admit nothing.
func (s Status) CanTransition(to Status) bool {
	if s != StatusPending {
		return false
	}
	switch to {
	case StatusExecuted, StatusRejected, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Claim is one team's request to acquire an unrostered player.
type Claim struct {
	ID           string
	LeagueID     string
	TeamID       string
	PlayerID     string
	DropPlayerID *string
	BidAmount    int64
	// Priority is the team's waiver rank snapshotted at submission time.
	Priority   int
	Status     Status
	ProcessAt  time.Time
	Note       string
	CreatedAt  time.Time
	ExecutedAt *time.Time
}

// GroupResult reports the outcome for one contested player in a run.
type GroupResult struct {
	PlayerID     string  `json:"player_id"`
	WinnerTeamID *string `json:"winner_team_id"`
	Amount       *int64  `json:"amount,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// ProcessResult is the processing-job output contract.
type ProcessResult struct {
	Processed int           `json:"processed"`
	Results   []GroupResult `json:"results"`
}

// TeamWaiverState is the derived per-team view used by the waiver-order
// endpoint. RemainingBudget is nil under priority-only policies.
type TeamWaiverState struct {
	TeamID           string
	Priority         int
	RemainingBudget  *int64
	ActiveClaims     int
	SuccessfulClaims int
}
