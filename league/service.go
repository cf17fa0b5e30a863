package league

import (
	"context"
	"errors"
	"fmt"

	"waiverflow/schedule"
)

var (
	// ErrInvalidPolicy signals a policy field outside its enum or range.
	ErrInvalidPolicy = errors.New("league: invalid waiver policy")
	// ErrNotCommissioner signals the caller may not administer the league.
	ErrNotCommissioner = errors.New("league: caller is not the commissioner")
)

// Scheduler is the slice of the trigger registry the service needs.
type Scheduler interface {
	Replace(leagueID string, cadence schedule.Cadence) bool
	Cancel(leagueID string)
}

// PolicyStore is the repository surface used by the service.
type PolicyStore interface {
	GetByID(ctx context.Context, id string) (League, error)
	Policy(ctx context.Context, leagueID string) (WaiverPolicy, error)
	UpsertPolicy(ctx context.Context, p WaiverPolicy) error
	Standings(ctx context.Context, leagueID string) ([]Standing, error)
}

// Service validates and applies policy changes, keeping the scheduler in sync.
type Service struct {
	repo      PolicyStore
	scheduler Scheduler
}

func NewService(repo PolicyStore, scheduler Scheduler) *Service {
	return &Service{repo: repo, scheduler: scheduler}
}

// UpdatePolicyParams carries the administrator-supplied policy fields.
type UpdatePolicyParams struct {
	LeagueID      string
	ActorUserID   string
	BidType       BidType
	BudgetPool    int64
	PeriodDays    int
	Tiebreaker    Tiebreaker
	AllowZeroBid  bool
	PriorityReset PriorityReset
	Cadence       string
}

// UpdatePolicy persists the policy and re-registers the league's trigger.
// Cadence expressions are validated here so a bad one can never reach the
// scheduler.
func (s *Service) UpdatePolicy(ctx context.Context, params UpdatePolicyParams) (WaiverPolicy, error) {
	l, err := s.repo.GetByID(ctx, params.LeagueID)
	if err != nil {
		return WaiverPolicy{}, err
	}
	if l.CommissionerUserID != params.ActorUserID {
		return WaiverPolicy{}, ErrNotCommissioner
	}

	if err := validatePolicy(params); err != nil {
		return WaiverPolicy{}, err
	}

	cadence, err := resolveCadence(params.Cadence, params.PeriodDays)
	if err != nil {
		return WaiverPolicy{}, err
	}

	policy := WaiverPolicy{
		LeagueID:      params.LeagueID,
		BidType:       params.BidType,
		BudgetPool:    params.BudgetPool,
		PeriodDays:    params.PeriodDays,
		Tiebreaker:    params.Tiebreaker,
		AllowZeroBid:  params.AllowZeroBid,
		PriorityReset: params.PriorityReset,
		Cadence:       params.Cadence,
	}
	if err := s.repo.UpsertPolicy(ctx, policy); err != nil {
		return WaiverPolicy{}, err
	}

	if s.scheduler != nil {
		if l.Active {
			s.scheduler.Replace(l.ID, cadence)
		} else {
			s.scheduler.Cancel(l.ID)
		}
	}
	return policy, nil
}

// ResolveCadence returns the trigger cadence for a stored policy.
func ResolveCadence(p WaiverPolicy) (schedule.Cadence, error) {
	return resolveCadence(p.Cadence, p.PeriodDays)
}

func resolveCadence(expr string, periodDays int) (schedule.Cadence, error) {
	if expr == "" {
		return schedule.DefaultCadence(periodDays), nil
	}
	return schedule.ParseCadence(expr)
}

func validatePolicy(params UpdatePolicyParams) error {
	switch params.BidType {
	case BidTypeBudget, BidTypeRolling, BidTypeReverseStandings, BidTypeContinual:
	default:
		return fmt.Errorf("%w: bid type %q", ErrInvalidPolicy, params.BidType)
	}
	switch params.Tiebreaker {
	case TiebreakPriorityOrder, TiebreakRecordInverse, TiebreakRandom:
	default:
		return fmt.Errorf("%w: tiebreaker %q", ErrInvalidPolicy, params.Tiebreaker)
	}
	switch params.PriorityReset {
	case ResetWeekly, ResetNever, ResetAfterClaim:
	default:
		return fmt.Errorf("%w: priority reset %q", ErrInvalidPolicy, params.PriorityReset)
	}
	if params.BudgetPool < 0 {
		return fmt.Errorf("%w: negative budget pool", ErrInvalidPolicy)
	}
	if params.BidType == BidTypeBudget && params.BudgetPool == 0 {
		return fmt.Errorf("%w: budget bidding requires a budget pool", ErrInvalidPolicy)
	}
	if params.PeriodDays < 1 {
		return fmt.Errorf("%w: period must be at least one day", ErrInvalidPolicy)
	}
	return nil
}
