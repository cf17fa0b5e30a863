package league

import "time"

// BidType selects how contested claims are won.
type BidType string

const (
	BidTypeBudget           BidType = "budget_bid"
	BidTypeRolling          BidType = "rolling_priority"
	BidTypeReverseStandings BidType = "reverse_standings_priority"
	BidTypeContinual        BidType = "continual_priority"
)

// Tiebreaker breaks equal bids under the budget policy.
type Tiebreaker string

const (
	TiebreakPriorityOrder Tiebreaker = "priority_order"
	TiebreakRecordInverse Tiebreaker = "record_inverse"
	TiebreakRandom        Tiebreaker = "random"
)

// PriorityReset controls when waiver priority is recomputed.
type PriorityReset string

const (
	ResetWeekly     PriorityReset = "weekly"
	ResetNever      PriorityReset = "never"
	ResetAfterClaim PriorityReset = "after_successful_claim"
)

// League is one season of one fantasy league.
type League struct {
	ID                 string
	Name               string
	Season             string
	Active             bool
	CommissionerUserID string
	CreatedAt          time.Time
}

// WaiverPolicy is the immutable per-league waiver configuration. Cadence is
// the raw trigger expression; empty means derive from PeriodDays.
type WaiverPolicy struct {
	LeagueID      string
	BidType       BidType
	BudgetPool    int64
	PeriodDays    int
	Tiebreaker    Tiebreaker
	AllowZeroBid  bool
	PriorityReset PriorityReset
	Cadence       string
	UpdatedAt     time.Time
}

// PriorityBased reports whether claim ordering is driven by priority rank
// rather than bid amount.
func (p WaiverPolicy) PriorityBased() bool {
	return p.BidType != BidTypeBudget
}

// Standing is a team's season record plus its stored waiver priority.
type Standing struct {
	TeamID         string
	Name           string
	OwnerUserID    string
	Wins           int
	Losses         int
	WaiverPriority int
}

// RecordDeficit orders records worst-first: higher means a worse team.
func (s Standing) RecordDeficit() int {
	return s.Losses - s.Wins
}
