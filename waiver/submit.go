package waiver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"waiverflow/league"
	"waiverflow/notify"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ClaimWriter is the repository surface the submission path needs.
type ClaimWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, c Claim) (Claim, error)
	HasPending(ctx context.Context, teamID, playerID string) (bool, error)
	GetByID(ctx context.Context, id string) (Claim, error)
	Cancel(ctx context.Context, id string) (Claim, error)
}

// AvailabilityStore answers roster membership questions.
type AvailabilityStore interface {
	IsRostered(ctx context.Context, leagueID, playerID string) (bool, error)
	HoldsPlayer(ctx context.Context, teamID, playerID string) (bool, error)
}

// BudgetSource is the ledger surface used for the advisory submission check.
type BudgetSource interface {
	Remaining(ctx context.Context, leagueID, teamID string, budgetPool int64) (int64, error)
}

// PolicySource loads the league's waiver policy.
type PolicySource interface {
	Policy(ctx context.Context, leagueID string) (league.WaiverPolicy, error)
}

// PrioritySnapshotter captures the team's rank at submission time.
type PrioritySnapshotter interface {
	TeamPriority(ctx context.Context, policy league.WaiverPolicy, teamID string) (int, error)
}

// EventSink is the transactional outbox surface.
type EventSink interface {
	Enqueue(ctx context.Context, tx pgx.Tx, event notify.Event) error
}

// TeamController is the external authorization collaborator: it answers
// whether a user controls a team.
type TeamController interface {
	ControlsTeam(ctx context.Context, userID, teamID string) (bool, error)
}

// ViewInvalidator drops cached waiver views after a write.
type ViewInvalidator interface {
	InvalidateLeague(leagueID string)
}

// SubmissionService accepts, validates, and cancels claims.
type SubmissionService struct {
	pool     TxBeginner
	claims   ClaimWriter
	roster   AvailabilityStore
	ledger   BudgetSource
	policies PolicySource
	priority PrioritySnapshotter
	outbox   EventSink
	authz    TeamController
	views    ViewInvalidator
	now      func() time.Time
	idGen    func() string
}

func NewSubmissionService(
	pool TxBeginner,
	claims ClaimWriter,
	roster AvailabilityStore,
	ledger BudgetSource,
	policies PolicySource,
	priority PrioritySnapshotter,
	outbox EventSink,
	authz TeamController,
	views ViewInvalidator,
) *SubmissionService {
	return &SubmissionService{
		pool:     pool,
		claims:   claims,
		roster:   roster,
		ledger:   ledger,
		policies: policies,
		priority: priority,
		outbox:   outbox,
		authz:    authz,
		views:    views,
		now:      time.Now,
		idGen:    func() string { return uuid.NewString() },
	}
}

// SubmitParams carries a new claim request. Team ownership is verified by the
// caller before this point.
type SubmitParams struct {
	TeamID       string
	LeagueID     string
	PlayerID     string
	DropPlayerID *string
	BidAmount    int64
	Note         string
}

// SubmitResult is returned on a successful submission.
type SubmitResult struct {
	ClaimID   string
	ProcessAt time.Time
}

// Submit runs the validation pipeline in a fixed order so each failure mode
// surfaces as its own sentinel, then persists the claim PENDING together with
// its confirmation event.
func (s *SubmissionService) Submit(ctx context.Context, params SubmitParams) (SubmitResult, error) {
	if params.TeamID == "" || params.LeagueID == "" || params.PlayerID == "" {
		return SubmitResult{}, fmt.Errorf("waiver: team, league, and player ids required")
	}
	if params.BidAmount < 0 {
		return SubmitResult{}, fmt.Errorf("waiver: negative bid amount")
	}

	policy, err := s.policies.Policy(ctx, params.LeagueID)
	if err != nil {
		return SubmitResult{}, err
	}

	if policy.BidType == league.BidTypeBudget {
		remaining, err := s.ledger.Remaining(ctx, params.LeagueID, params.TeamID, policy.BudgetPool)
		if err != nil {
			return SubmitResult{}, err
		}
		if params.BidAmount > remaining {
			return SubmitResult{}, ErrInsufficientBudget
		}
		if params.BidAmount == 0 && !policy.AllowZeroBid {
			return SubmitResult{}, ErrZeroBidNotAllowed
		}
	}

	rostered, err := s.roster.IsRostered(ctx, params.LeagueID, params.PlayerID)
	if err != nil {
		return SubmitResult{}, err
	}
	if rostered {
		return SubmitResult{}, ErrPlayerNotAvailable
	}

	if params.DropPlayerID != nil {
		holds, err := s.roster.HoldsPlayer(ctx, params.TeamID, *params.DropPlayerID)
		if err != nil {
			return SubmitResult{}, err
		}
		if !holds {
			return SubmitResult{}, ErrInvalidDropSelection
		}
	}

	pending, err := s.claims.HasPending(ctx, params.TeamID, params.PlayerID)
	if err != nil {
		return SubmitResult{}, err
	}
	if pending {
		return SubmitResult{}, ErrDuplicateClaim
	}

	rank, err := s.priority.TeamPriority(ctx, policy, params.TeamID)
	if err != nil {
		return SubmitResult{}, err
	}

	cadence, err := league.ResolveCadence(policy)
	if err != nil {
		return SubmitResult{}, err
	}
	processAt := cadence.Next(s.now())

	claim := Claim{
		ID:           s.idGen(),
		LeagueID:     params.LeagueID,
		TeamID:       params.TeamID,
		PlayerID:     params.PlayerID,
		DropPlayerID: params.DropPlayerID,
		BidAmount:    params.BidAmount,
		Priority:     rank,
		ProcessAt:    processAt,
		Note:         params.Note,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("waiver: begin submit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := s.claims.Insert(ctx, tx, claim)
	if err != nil {
		return SubmitResult{}, err
	}

	event := notify.SubmittedEvent(
		inserted.ID, inserted.LeagueID, inserted.TeamID, inserted.PlayerID,
		inserted.ProcessAt.UTC().Format(time.RFC3339),
	)
	if err := s.outbox.Enqueue(ctx, tx, event); err != nil {
		return SubmitResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SubmitResult{}, fmt.Errorf("waiver: commit submit tx: %w", err)
	}

	if s.views != nil {
		s.views.InvalidateLeague(params.LeagueID)
	}
	return SubmitResult{ClaimID: inserted.ID, ProcessAt: inserted.ProcessAt}, nil
}

// Cancel withdraws a pending claim. Only the controller of the submitting
// team may cancel, and only while the claim is still pending.
func (s *SubmissionService) Cancel(ctx context.Context, claimID, requestingUserID string) (Claim, error) {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return Claim{}, err
	}

	controls, err := s.authz.ControlsTeam(ctx, requestingUserID, claim.TeamID)
	if err != nil {
		return Claim{}, err
	}
	if !controls {
		return Claim{}, ErrUnauthorized
	}

	cancelled, err := s.claims.Cancel(ctx, claimID)
	if err != nil {
		return Claim{}, err
	}

	if s.views != nil {
		s.views.InvalidateLeague(claim.LeagueID)
	}
	return cancelled, nil
}
