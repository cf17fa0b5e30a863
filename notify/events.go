package notify

// Topics emitted by the waiver pipeline. The transport that delivers them to
// users is external; these names and payloads are the contract.
const (
	TopicWaiverSubmitted  = "waiver.submitted"
	TopicWaiverSuccess    = "waiver.success"
	TopicWaiverFailed     = "waiver.failed"
	TopicWaiverRejected   = "waiver.rejected"
	TopicWaiverUnresolved = "waiver.unresolved"
	TopicSystemError      = "system.error"
)

// Event is one notification to be dispatched after commit.
type Event struct {
	Topic   string
	Payload map[string]any
}

// SubmittedEvent confirms a claim was accepted for a future run.
func SubmittedEvent(claimID, leagueID, teamID, playerID string, processAt string) Event {
	return Event{
		Topic: TopicWaiverSubmitted,
		Payload: map[string]any{
			"claim_id":   claimID,
			"league_id":  leagueID,
			"team_id":    teamID,
			"player_id":  playerID,
			"process_at": processAt,
		},
	}
}

// SuccessEvent tells the winning team its claim executed.
func SuccessEvent(claimID, leagueID, teamID, playerID string, amount int64) Event {
	return Event{
		Topic: TopicWaiverSuccess,
		Payload: map[string]any{
			"claim_id":  claimID,
			"league_id": leagueID,
			"team_id":   teamID,
			"player_id": playerID,
			"amount":    amount,
		},
	}
}

// OutbidEvent tells a losing team it was beaten, including both bids.
func OutbidEvent(claimID, leagueID, teamID, playerID string, ownBid, winningBid int64) Event {
	return Event{
		Topic: TopicWaiverFailed,
		Payload: map[string]any{
			"claim_id":    claimID,
			"league_id":   leagueID,
			"team_id":     teamID,
			"player_id":   playerID,
			"own_bid":     ownBid,
			"winning_bid": winningBid,
		},
	}
}

// BudgetRejectedEvent tells a team its claim could no longer be afforded.
func BudgetRejectedEvent(claimID, leagueID, teamID, playerID string, bid, remaining int64) Event {
	return Event{
		Topic: TopicWaiverRejected,
		Payload: map[string]any{
			"claim_id":  claimID,
			"league_id": leagueID,
			"team_id":   teamID,
			"player_id": playerID,
			"bid":       bid,
			"remaining": remaining,
		},
	}
}

// UnresolvedEvent records a contested player no claim could afford.
func UnresolvedEvent(leagueID, playerID string, claimCount int) Event {
	return Event{
		Topic: TopicWaiverUnresolved,
		Payload: map[string]any{
			"league_id":   leagueID,
			"player_id":   playerID,
			"claim_count": claimCount,
		},
	}
}

// SystemErrorEvent routes a processing failure to the league commissioner.
func SystemErrorEvent(leagueID, commissionerUserID, detail string) Event {
	return Event{
		Topic: TopicSystemError,
		Payload: map[string]any{
			"league_id":    leagueID,
			"recipient_id": commissionerUserID,
			"detail":       detail,
		},
	}
}
