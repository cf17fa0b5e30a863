package league

import (
	"context"
	"errors"
	"testing"

	"waiverflow/schedule"
)

func validParams() UpdatePolicyParams {
	return UpdatePolicyParams{
		LeagueID:      "league-1",
		ActorUserID:   "user-commish",
		BidType:       BidTypeBudget,
		BudgetPool:    100,
		PeriodDays:    1,
		Tiebreaker:    TiebreakPriorityOrder,
		AllowZeroBid:  true,
		PriorityReset: ResetNever,
	}
}

func TestUpdatePolicy_Success(t *testing.T) {
	repo := &fakePolicyStore{league: League{
		ID: "league-1", Active: true, CommissionerUserID: "user-commish",
	}}
	sched := &fakeScheduler{}
	svc := NewService(repo, sched)

	policy, err := svc.UpdatePolicy(context.Background(), validParams())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.upserted == nil {
		t.Fatal("expected policy persisted")
	}
	if policy.BidType != BidTypeBudget || policy.BudgetPool != 100 {
		t.Fatalf("unexpected policy %+v", policy)
	}
	if sched.replaced != "league-1" {
		t.Fatalf("expected trigger replaced for league-1, got %q", sched.replaced)
	}
}

func TestUpdatePolicy_RequiresCommissioner(t *testing.T) {
	repo := &fakePolicyStore{league: League{
		ID: "league-1", Active: true, CommissionerUserID: "user-commish",
	}}
	svc := NewService(repo, &fakeScheduler{})

	params := validParams()
	params.ActorUserID = "user-stranger"

	if _, err := svc.UpdatePolicy(context.Background(), params); !errors.Is(err, ErrNotCommissioner) {
		t.Fatalf("expected ErrNotCommissioner, got %v", err)
	}
	if repo.upserted != nil {
		t.Fatal("expected no persistence for unauthorized caller")
	}
}

func TestUpdatePolicy_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*UpdatePolicyParams)
	}{
		{"unknown bid type", func(p *UpdatePolicyParams) { p.BidType = "silent_auction" }},
		{"unknown tiebreaker", func(p *UpdatePolicyParams) { p.Tiebreaker = "coin_flip" }},
		{"unknown reset", func(p *UpdatePolicyParams) { p.PriorityReset = "monthly" }},
		{"negative pool", func(p *UpdatePolicyParams) { p.BudgetPool = -1 }},
		{"budget bidding without pool", func(p *UpdatePolicyParams) { p.BudgetPool = 0 }},
		{"zero period", func(p *UpdatePolicyParams) { p.PeriodDays = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakePolicyStore{league: League{
				ID: "league-1", Active: true, CommissionerUserID: "user-commish",
			}}
			svc := NewService(repo, &fakeScheduler{})

			params := validParams()
			tc.mutate(&params)

			if _, err := svc.UpdatePolicy(context.Background(), params); !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("expected ErrInvalidPolicy, got %v", err)
			}
			if repo.upserted != nil {
				t.Fatal("expected invalid policy not persisted")
			}
		})
	}
}

func TestUpdatePolicy_BadCadenceRejectedBeforePersist(t *testing.T) {
	repo := &fakePolicyStore{league: League{
		ID: "league-1", Active: true, CommissionerUserID: "user-commish",
	}}
	svc := NewService(repo, &fakeScheduler{})

	params := validParams()
	params.Cadence = "25:99 blursday"

	if _, err := svc.UpdatePolicy(context.Background(), params); !errors.Is(err, schedule.ErrBadCadence) {
		t.Fatalf("expected ErrBadCadence, got %v", err)
	}
	if repo.upserted != nil {
		t.Fatal("expected bad cadence not persisted")
	}
}

func TestUpdatePolicy_InactiveLeagueCancelsTrigger(t *testing.T) {
	repo := &fakePolicyStore{league: League{
		ID: "league-1", Active: false, CommissionerUserID: "user-commish",
	}}
	sched := &fakeScheduler{}
	svc := NewService(repo, sched)

	if _, err := svc.UpdatePolicy(context.Background(), validParams()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if sched.replaced != "" {
		t.Fatalf("expected no trigger for inactive league, got %q", sched.replaced)
	}
	if sched.cancelled != "league-1" {
		t.Fatalf("expected trigger cancelled, got %q", sched.cancelled)
	}
}

func TestResolveCadence(t *testing.T) {
	derived, err := ResolveCadence(WaiverPolicy{PeriodDays: 1})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if derived.String() != "03:00" {
		t.Fatalf("expected derived daily cadence, got %q", derived.String())
	}

	explicit, err := ResolveCadence(WaiverPolicy{PeriodDays: 1, Cadence: "10:30 wed"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if explicit.String() != "10:30 wed" {
		t.Fatalf("expected explicit cadence, got %q", explicit.String())
	}
}

type fakePolicyStore struct {
	league   League
	upserted *WaiverPolicy
}

func (f *fakePolicyStore) GetByID(ctx context.Context, id string) (League, error) {
	return f.league, nil
}

func (f *fakePolicyStore) Policy(ctx context.Context, leagueID string) (WaiverPolicy, error) {
	if f.upserted == nil {
		return WaiverPolicy{}, ErrPolicyNotFound
	}
	return *f.upserted, nil
}

func (f *fakePolicyStore) UpsertPolicy(ctx context.Context, p WaiverPolicy) error {
	f.upserted = &p
	return nil
}

func (f *fakePolicyStore) Standings(ctx context.Context, leagueID string) ([]Standing, error) {
	return nil, nil
}

type fakeScheduler struct {
	replaced  string
	cancelled string
}

func (f *fakeScheduler) Replace(leagueID string, cadence schedule.Cadence) bool {
	f.replaced = leagueID
	return true
}

func (f *fakeScheduler) Cancel(leagueID string) {
	f.cancelled = leagueID
}
