package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"emberquest/server/internal/config"
	"emberquest/server/internal/interfaces"
	"emberquest/server/internal/models"
	"emberquest/server/internal/storage"
)

// Service owns the adventure state machine: creation, turn application,
// completion, abandonment, restart and resume. All invariants live here;
// handlers stay thin.
type Service struct {
	store    storage.Store
	locks    storage.Locker
	narrator interfaces.Narrator
	cfg      config.GameConfig

	// SceneHook, when set, receives the visual prompt of each applied turn.
	// It must not block: scene rendering is fire-and-forget relative to the
	// turn response.
	SceneHook func(adventureID, prompt string)

	// Now is the clock; tests override it to simulate day rollover.
	Now func() time.Time
}

func NewService(store storage.Store, locks storage.Locker, narrator interfaces.Narrator, cfg config.GameConfig) *Service {
	return &Service{
		store:    store,
		locks:    locks,
		narrator: narrator,
		cfg:      cfg,
		Now:      time.Now,
	}
}

// StartParams describes a session-create request.
type StartParams struct {
	OwnerID    string
	IP         string
	Anonymous  bool
	Character  models.Character
	ThemeSeeds []string
}

// Start creates a new adventure: rate-limit gate (anonymous only), campaign
// generation, then the session row. The narrator call runs without any lock
// held; the quota is re-checked and consumed atomically afterwards.
func (s *Service) Start(ctx context.Context, p StartParams) (*models.Adventure, error) {
	if err := validateCharacter(p.Character); err != nil {
		return nil, err
	}
	if p.OwnerID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrValidation)
	}

	if p.Anonymous {
		if err := s.checkQuota(ctx, p.IP); err != nil {
			return nil, err
		}
	}

	if s.cfg.SingleActive {
		if _, err := s.store.GetActiveAdventure(ctx, p.OwnerID); err == nil {
			return nil, ErrActiveExists
		}
	}

	// The expensive call happens outside any lock.
	campaign, err := s.narrator.CreateCampaign(ctx, p.Character, p.ThemeSeeds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNarrator, err)
	}
	if !campaign.Valid() {
		return nil, fmt.Errorf("%w: narrator returned unusable campaign", ErrNarrator)
	}

	if p.Anonymous {
		if err := s.consumeQuota(ctx, p.IP); err != nil {
			return nil, err
		}
	}

	defaults := models.DefaultsForClass(p.Character.Class)
	now := s.Now()
	adv := &models.Adventure{
		ID:           uuid.NewString(),
		OwnerID:      p.OwnerID,
		Character:    p.Character,
		HP:           defaults.HP,
		Gold:         defaults.Gold,
		TurnCount:    0,
		MaxTurns:     s.maxTurnsFor(p.Anonymous),
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastPlayedAt: now,
	}
	adv.SetInventory(defaults.Inventory)
	if err := adv.SetCampaign(campaign); err != nil {
		return nil, err
	}

	if err := s.store.CreateAdventure(ctx, adv); err != nil {
		return nil, err
	}
	return adv, nil
}

func (s *Service) maxTurnsFor(anonymous bool) int {
	if anonymous {
		return s.cfg.FreeTurnCap
	}
	return models.MaxTurnsUnlimited
}

// GetOwned is the sole authorization boundary: every mutating operation and
// most reads pass through it before touching an adventure.
func (s *Service) GetOwned(ctx context.Context, adventureID, requesterID string) (*models.Adventure, error) {
	adv, err := s.store.GetAdventure(ctx, adventureID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if adv.OwnerID != requesterID {
		return nil, ErrForbidden
	}
	return adv, nil
}

// Active returns the owner's most recently played active adventure.
func (s *Service) Active(ctx context.Context, ownerID string) (*models.Adventure, error) {
	adv, err := s.store.GetActiveAdventure(ctx, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return adv, nil
}

// List returns the owner's adventures, capped to the most recent N for
// non-premium owners.
func (s *Service) List(ctx context.Context, ownerID string) ([]*models.Adventure, error) {
	limit := s.cfg.ListCap
	if user, err := s.store.GetUser(ctx, ownerID); err == nil && user.Premium {
		limit = 0
	}
	return s.store.ListAdventures(ctx, ownerID, limit)
}

// Turns returns the adventure's ordered turn history after an ownership check.
func (s *Service) Turns(ctx context.Context, adventureID, requesterID string) ([]*models.Turn, error) {
	if _, err := s.GetOwned(ctx, adventureID, requesterID); err != nil {
		return nil, err
	}
	return s.store.ListTurns(ctx, adventureID)
}

// applyTurnResult folds a validated outcome into the adventure and builds the
// matching turn record. The outcome's snapshot replaces hp/gold/inventory
// wholly; the generator is the sole authority on next-state.
func (s *Service) applyTurnResult(adv *models.Adventure, action string, outcome *interfaces.TurnOutcome) *models.Turn {
	now := s.Now()

	adv.TurnCount++
	adv.HP = outcome.HPCurrent
	adv.Gold = outcome.Gold
	if adv.Gold < 0 {
		adv.Gold = 0
	}
	adv.SetInventory(outcome.Inventory)
	adv.UpdatedAt = now
	adv.LastPlayedAt = now

	if outcome.GameOver {
		adv.Status = models.StatusCompleted
		if outcome.HPCurrent <= 0 {
			adv.EndingType = models.EndingDeath
		} else {
			adv.EndingType = models.EndingVictory
		}
	}

	turn := &models.Turn{
		ID:           uuid.NewString(),
		AdventureID:  adv.ID,
		TurnNumber:   adv.TurnCount,
		PlayerAction: action,
		Narrative:    outcome.Narrative,
		VisualPrompt: outcome.VisualPrompt,
		HP:           adv.HP,
		Gold:         adv.Gold,
		CreatedAt:    now,
	}
	turn.SetInventory(adv.Inventory())
	turn.SetOptions(outcome.Options)
	return turn
}

// Abandon closes an active adventure on explicit player exit. An adventure
// the free-tier cap has exhausted completes with a limit_reached ending
// instead; otherwise it becomes abandoned with no ending set.
func (s *Service) Abandon(ctx context.Context, adventureID, requesterID string) (*models.Adventure, error) {
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
	if adv.TurnLimitReached() {
		adv.Status = models.StatusCompleted
		adv.EndingType = models.EndingLimitReached
	} else {
		adv.Status = models.StatusAbandoned
	}
	adv.UpdatedAt = s.Now()
	if err := s.store.SaveAdventure(ctx, adv); err != nil {
		return nil, err
	}
	return adv, nil
}

// Restart retries the same campaign: turns wiped, derived state back to class
// defaults, status active. Character identity and campaign data survive.
func (s *Service) Restart(ctx context.Context, adventureID, requesterID string) (*models.Adventure, error) {
	release, err := s.locks.Acquire(ctx, "adventure:"+adventureID)
	if err != nil {
		return nil, err
	}
	defer release()

	adv, err := s.GetOwned(ctx, adventureID, requesterID)
	if err != nil {
		return nil, err
	}

	defaults := models.DefaultsForClass(adv.Character.Class)
	now := s.Now()
	adv.TurnCount = 0
	adv.HP = defaults.HP
	adv.Gold = defaults.Gold
	adv.SetInventory(defaults.Inventory)
	adv.Status = models.StatusActive
	adv.EndingType = ""
	adv.SceneImageKey = ""
	adv.UpdatedAt = now
	adv.LastPlayedAt = now

	if err := s.store.ResetAdventure(ctx, adv); err != nil {
		return nil, err
	}
	return adv, nil
}

// Delete hard-deletes the adventure and cascades turn deletion.
func (s *Service) Delete(ctx context.Context, adventureID, requesterID string) error {
	release, err := s.locks.Acquire(ctx, "adventure:"+adventureID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.GetOwned(ctx, adventureID, requesterID); err != nil {
		return err
	}
	return s.store.DeleteAdventure(ctx, adventureID)
}

// LiftTurnCap removes the free-tier turn cap after a sign-up/upgrade and
// reopens an adventure the cap closed.
func (s *Service) LiftTurnCap(ctx context.Context, adventureID, requesterID string) (*models.Adventure, error) {
	release, err := s.locks.Acquire(ctx, "adventure:"+adventureID)
	if err != nil {
		return nil, err
	}
	defer release()

	adv, err := s.GetOwned(ctx, adventureID, requesterID)
	if err != nil {
		return nil, err
	}
	adv.MaxTurns = models.MaxTurnsUnlimited
	if adv.Status == models.StatusCompleted && adv.EndingType == models.EndingLimitReached {
		adv.Status = models.StatusActive
		adv.EndingType = ""
	}
	adv.UpdatedAt = s.Now()
	if err := s.store.SaveAdventure(ctx, adv); err != nil {
		return nil, err
	}
	return adv, nil
}

func validateCharacter(c models.Character) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: character name is required", ErrValidation)
	}
	if strings.TrimSpace(c.Race) == "" {
		return fmt.Errorf("%w: character race is required", ErrValidation)
	}
	if strings.TrimSpace(c.Class) == "" {
		return fmt.Errorf("%w: character class is required", ErrValidation)
	}
	return nil
}
