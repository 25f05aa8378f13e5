package game

import (
	"context"
	"errors"
	"fmt"
	"log"

	"emberquest/server/internal/interfaces"
	"emberquest/server/internal/models"
	"emberquest/server/internal/storage"
)

// AdvanceResult is what a successfully applied turn hands back to the caller.
type AdvanceResult struct {
	Adventure *models.Adventure
	Turn      *models.Turn
	Outcome   *interfaces.TurnOutcome

	// Epilogue is present when the turn completed the adventure and the
	// epilogue call succeeded. It is decorative; nil is not an error.
	Epilogue *interfaces.Epilogue
}

// Advance runs one turn: validate (lock held briefly), invoke the narrator
// (no lock, the long pole), commit (lock held briefly). A narrator failure
// leaves the adventure byte-identical to its pre-call state so the same turn
// number can be retried.
func (s *Service) Advance(ctx context.Context, adventureID, requesterID, action string, diceRoll int) (*AdvanceResult, error) {
	req, prospective, err := s.reserveTurn(ctx, adventureID, requesterID, action, diceRoll)
	if err != nil {
		return nil, err
	}

	outcome, err := s.narrator.NextTurn(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNarrator, err)
	}
	if err := outcome.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNarrator, err)
	}

	result, err := s.commitTurn(ctx, adventureID, requesterID, action, outcome, prospective)
	if err != nil {
		return nil, err
	}

	if result.Adventure.Status == models.StatusCompleted {
		result.Epilogue = s.tryEpilogue(ctx, result.Adventure)
	}

	if s.SceneHook != nil && outcome.VisualPrompt != "" {
		s.SceneHook(adventureID, outcome.VisualPrompt)
	}
	return result, nil
}

// reserveTurn validates the advance preconditions and reconstructs the
// narrator's input under the session lock. Nothing is consumed: the limit
// check happens on the prospective turn number, before any generator work.
// The prospective number is returned so the commit can detect a concurrent
// advance that landed while the narrator was in flight.
func (s *Service) reserveTurn(ctx context.Context, adventureID, requesterID, action string, diceRoll int) (*interfaces.TurnRequest, int, error) {
	release, err := s.locks.Acquire(ctx, "adventure:"+adventureID)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	adv, err := s.GetOwned(ctx, adventureID, requesterID)
	if err != nil {
		return nil, 0, err
	}
	if !adv.IsActive() {
		return nil, 0, ErrNotActive
	}

	prospective := adv.TurnCount + 1
	if adv.MaxTurns > 0 && prospective > adv.MaxTurns {
		return nil, 0, ErrTurnLimit
	}

	campaign, err := adv.Campaign()
	if err != nil || !campaign.Valid() {
		return nil, 0, ErrMissingCampaign
	}

	firstTurn := adv.TurnCount == 0
	if !firstTurn && action == "" {
		return nil, 0, fmt.Errorf("%w: an action is required", ErrValidation)
	}

	turns, err := s.store.ListTurns(ctx, adventureID)
	if err != nil {
		return nil, 0, err
	}
	state, err := Reconstruct(adv, turns)
	if err != nil {
		return nil, 0, err
	}

	return &interfaces.TurnRequest{
		History:      state.Context,
		PlayerAction: action,
		FirstTurn:    firstTurn,
		Scene: interfaces.SceneState{
			Character: adv.Character,
			Campaign:  campaign,
			HP:        adv.HP,
			Gold:      adv.Gold,
			Inventory: adv.Inventory(),
			DiceRoll:  diceRoll,
		},
	}, prospective, nil
}

// commitTurn re-validates under the session lock and persists the applied
// turn atomically. The outcome was generated for the reserved turn number;
// if the re-fetched state has moved past it, the context the narrator saw is
// stale and the result must be discarded, never appended as a second turn.
func (s *Service) commitTurn(ctx context.Context, adventureID, requesterID, action string, outcome *interfaces.TurnOutcome, prospective int) (*AdvanceResult, error) {
	release, err := s.locks.Acquire(ctx, "adventure:"+adventureID)
	if err != nil {
		return nil, err
	}
	defer release()

	adv, err := s.GetOwned(ctx, adventureID, requesterID)
	if err != nil {
		return nil, err
	}
	if !adv.IsActive() {
		return nil, ErrNotActive
	}
	if adv.TurnCount+1 != prospective {
		return nil, fmt.Errorf("%w: a concurrent turn was already applied", ErrNotActive)
	}
	if adv.MaxTurns > 0 && prospective > adv.MaxTurns {
		return nil, ErrTurnLimit
	}

	turn := s.applyTurnResult(adv, action, outcome)
	if err := s.store.AppendTurn(ctx, adv, turn); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("%w: a concurrent turn was already applied", ErrNotActive)
		}
		return nil, err
	}

	return &AdvanceResult{Adventure: adv, Turn: turn, Outcome: outcome}, nil
}

// tryEpilogue asks the narrator for a closing. Failure never blocks
// completion; the adventure is already committed as completed.
func (s *Service) tryEpilogue(ctx context.Context, adv *models.Adventure) *interfaces.Epilogue {
	turns, err := s.store.ListTurns(ctx, adv.ID)
	if err != nil {
		log.Printf("Warning: failed to load history for epilogue of %s: %v", adv.ID, err)
		return nil
	}
	state, err := Reconstruct(adv, turns)
	if err != nil {
		return nil
	}
	epilogue, err := s.narrator.Epilogue(ctx, adv, state.Context)
	if err != nil {
		log.Printf("Warning: epilogue generation failed for %s: %v", adv.ID, err)
		return nil
	}
	return epilogue
}
