package game

import "errors"

// Policy and validation errors are expected, caller-visible outcomes and map
// to distinct API statuses. They are never retried blindly; storage failures
// propagate separately as opaque errors.
var (
	// ErrNotFound means no such adventure exists (or the caller may not
	// learn that it does).
	ErrNotFound = errors.New("adventure not found")

	// ErrForbidden means the adventure exists but the requester does not
	// own it. No adventure data accompanies it.
	ErrForbidden = errors.New("forbidden")

	// ErrNotActive rejects a mutation on a completed or abandoned adventure.
	ErrNotActive = errors.New("adventure is not active")

	// ErrTurnLimit rejects an advance past the free-tier turn cap. The
	// attempt consumes nothing: no turn record, no count change.
	ErrTurnLimit = errors.New("turn limit reached")

	// ErrDailyLimit rejects an anonymous session start over the per-IP
	// daily quota.
	ErrDailyLimit = errors.New("daily adventure limit reached")

	// ErrMissingCampaign rejects a turn on an adventure without usable
	// campaign data; the generator's context would be meaningless.
	ErrMissingCampaign = errors.New("campaign data missing")

	// ErrActiveExists rejects a create while the owner already has an
	// active adventure (free-tier deployments).
	ErrActiveExists = errors.New("an active adventure already exists")

	// ErrValidation rejects a malformed payload before any persistence.
	ErrValidation = errors.New("validation failed")

	// ErrNarrator wraps generator failures: timeouts, malformed structured
	// output, upstream quota. The adventure is left exactly as it was, so
	// the same turn number can be retried.
	ErrNarrator = errors.New("narrator unavailable")
)

// FallbackNarrative is surfaced to the player when the narrator fails. It is
// never persisted as a real turn.
const FallbackNarrative = "The mists swirl and the tale falters for a moment. " +
	"Take a breath, steady yourself, and try your action again."
