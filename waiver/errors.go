package waiver

import "errors"

var (
	// ErrNotFound signals the claim does not exist.
	ErrNotFound = errors.New("waiver: claim not found")
	// ErrUnauthorized signals the caller does not control the claiming team.
	ErrUnauthorized = errors.New("waiver: caller does not control team")
	// ErrInsufficientBudget signals a bid beyond the team's remaining budget.
	ErrInsufficientBudget = errors.New("waiver: insufficient budget")
	// ErrZeroBidNotAllowed signals a zero bid under a policy forbidding them.
	ErrZeroBidNotAllowed = errors.New("waiver: zero bids not allowed")
	// ErrPlayerNotAvailable signals the target player is already rostered.
	ErrPlayerNotAvailable = errors.New("waiver: player not available")
	// ErrInvalidDropSelection signals the drop player is not on the team's roster.
	ErrInvalidDropSelection = errors.New("waiver: invalid drop selection")
	// ErrDuplicateClaim signals a pending claim already exists for the pair.
	ErrDuplicateClaim = errors.New("waiver: duplicate pending claim")
	// ErrInvalidTransition signals an operation on a terminal claim.
	ErrInvalidTransition = errors.New("waiver: invalid status transition")
	// ErrRunInProgress signals a processing run is already active for the league.
	ErrRunInProgress = errors.New("waiver: processing run already in progress")
)
