package waiver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BudgetLedger is the read side of team spending: a team's remaining budget
// is the policy pool minus the sum of bids on its executed claims. It never
// writes; the execution engine is the sole producer of the facts it reads.
type BudgetLedger struct {
	pool *pgxpool.Pool
}

func NewBudgetLedger(pool *pgxpool.Pool) *BudgetLedger {
	return &BudgetLedger{pool: pool}
}

// Spent returns the team's executed-bid total for the season.
func (l *BudgetLedger) Spent(ctx context.Context, leagueID, teamID string) (int64, error) {
	var spent int64
	err := l.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(bid_amount), 0)
		FROM waiver_claims
		WHERE league_id = $1 AND team_id = $2 AND status = 'executed'
	`, leagueID, teamID).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("waiver: sum executed bids: %w", err)
	}
	return spent, nil
}

// Remaining returns the team's budget headroom against the given pool. The
// submission path uses it as an advisory check; the execution engine re-reads
// it authoritatively before committing a winner.
func (l *BudgetLedger) Remaining(ctx context.Context, leagueID, teamID string, budgetPool int64) (int64, error) {
	spent, err := l.Spent(ctx, leagueID, teamID)
	if err != nil {
		return 0, err
	}
	return budgetPool - spent, nil
}
