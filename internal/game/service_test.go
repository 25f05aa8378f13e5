package game

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"emberquest/server/internal/config"
	"emberquest/server/internal/interfaces"
	"emberquest/server/internal/models"
	"emberquest/server/internal/storage"
)

// stubNarrator is a scripted generator for tests.
type stubNarrator struct {
	campaign    models.Campaign
	campaignErr error

	nextTurn func(req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error)
	requests []*interfaces.TurnRequest

	epilogue    *interfaces.Epilogue
	epilogueErr error
}

func (s *stubNarrator) CreateCampaign(ctx context.Context, character models.Character, themeSeeds []string) (models.Campaign, error) {
	if s.campaignErr != nil {
		return models.Campaign{}, s.campaignErr
	}
	return s.campaign, nil
}

func (s *stubNarrator) NextTurn(ctx context.Context, req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
	s.requests = append(s.requests, req)
	if s.nextTurn != nil {
		return s.nextTurn(req)
	}
	return defaultOutcome(), nil
}

func (s *stubNarrator) Epilogue(ctx context.Context, adv *models.Adventure, history []interfaces.ContextEntry) (*interfaces.Epilogue, error) {
	if s.epilogueErr != nil {
		return nil, s.epilogueErr
	}
	if s.epilogue != nil {
		return s.epilogue, nil
	}
	return &interfaces.Epilogue{Title: "The End", Text: "It is done.", EndingType: "victory"}, nil
}

func defaultOutcome() *interfaces.TurnOutcome {
	return &interfaces.TurnOutcome{
		Narrative:    "The cellar door groans open onto darkness.",
		VisualPrompt: "a torchlit cellar stairway",
		HPCurrent:    28,
		Gold:         12,
		Inventory:    []string{"Greatsword", "Chainmail", "Healing Potion"},
		Options:      []string{"Descend quietly", "Light a torch", "Call out a challenge"},
	}
}

func testCampaign() models.Campaign {
	return models.Campaign{
		Title:           "The Ember Crown",
		Acts:            []string{"The village burns", "The mountain pass", "The crown reclaimed"},
		PossibleEndings: []string{"The crown restored", "Death in the deep"},
		Backstory:       "An old king's crown calls from the ash.",
	}
}

func testCharacter() models.Character {
	return models.Character{Name: "Brakka", Race: "half-orc", Class: "warrior"}
}

func testConfig() config.GameConfig {
	return config.GameConfig{FreeDailyLimit: 3, FreeTurnCap: 10, ListCap: 10}
}

func newTestService(cfg config.GameConfig) (*Service, *stubNarrator) {
	narrator := &stubNarrator{campaign: testCampaign()}
	svc := NewService(storage.NewMemoryStore(), storage.NewLocalLocker(), narrator, cfg)
	return svc, narrator
}

func mustStart(t *testing.T, svc *Service, owner string, anonymous bool) *models.Adventure {
	t.Helper()
	adv, err := svc.Start(context.Background(), StartParams{
		OwnerID:   owner,
		IP:        "203.0.113.7",
		Anonymous: anonymous,
		Character: testCharacter(),
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return adv
}

func TestStartAppliesClassDefaults(t *testing.T) {
	svc, _ := newTestService(testConfig())
	adv := mustStart(t, svc, "anon:203.0.113.7", true)

	if adv.HP != 30 || adv.Gold != 10 {
		t.Errorf("warrior defaults wrong: hp=%d gold=%d", adv.HP, adv.Gold)
	}
	inv := adv.Inventory()
	if len(inv) != 3 || inv[0] != "Greatsword" {
		t.Errorf("unexpected starting inventory: %v", inv)
	}
	if adv.Status != models.StatusActive || adv.TurnCount != 0 {
		t.Errorf("new adventure not active at turn 0: status=%s turns=%d", adv.Status, adv.TurnCount)
	}
	if adv.MaxTurns != 10 {
		t.Errorf("anonymous adventure should carry the free turn cap, got %d", adv.MaxTurns)
	}

	campaign, err := adv.Campaign()
	if err != nil || !campaign.Valid() {
		t.Errorf("stored campaign unusable: %v %v", campaign, err)
	}
}

func TestStartAuthenticatedHasNoTurnCap(t *testing.T) {
	svc, _ := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)
	if adv.MaxTurns != models.MaxTurnsUnlimited {
		t.Errorf("authenticated adventure should be uncapped, got %d", adv.MaxTurns)
	}
}

func TestStartRejectsIncompleteCharacter(t *testing.T) {
	svc, _ := newTestService(testConfig())
	_, err := svc.Start(context.Background(), StartParams{
		OwnerID:   "user-1",
		Character: models.Character{Name: "Brakka"},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStartNarratorFailurePersistsNothing(t *testing.T) {
	svc, narrator := newTestService(testConfig())
	narrator.campaignErr = fmt.Errorf("upstream down")

	_, err := svc.Start(context.Background(), StartParams{
		OwnerID:   "anon:203.0.113.7",
		IP:        "203.0.113.7",
		Anonymous: true,
		Character: testCharacter(),
	})
	if !errors.Is(err, ErrNarrator) {
		t.Fatalf("expected ErrNarrator, got %v", err)
	}

	// The failed attempt must not consume quota.
	status, err := svc.RateLimitStatus(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}
	if status.Used != 0 {
		t.Errorf("failed start consumed quota: used=%d", status.Used)
	}

	advs, _ := svc.List(context.Background(), "anon:203.0.113.7")
	if len(advs) != 0 {
		t.Errorf("failed start left %d adventures behind", len(advs))
	}
}

func TestSingleActiveEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.SingleActive = true
	svc, _ := newTestService(cfg)

	mustStart(t, svc, "user-1", false)
	_, err := svc.Start(context.Background(), StartParams{
		OwnerID:   "user-1",
		Character: testCharacter(),
	})
	if !errors.Is(err, ErrActiveExists) {
		t.Fatalf("expected ErrActiveExists, got %v", err)
	}
}

func TestAdvanceAppliesTurnAndSnapshots(t *testing.T) {
	svc, _ := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)

	result, err := svc.Advance(context.Background(), adv.ID, "user-1", "", 0)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if result.Adventure.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", result.Adventure.TurnCount)
	}
	if result.Turn.TurnNumber != 1 {
		t.Errorf("turn number = %d, want 1", result.Turn.TurnNumber)
	}
	if result.Adventure.HP != 28 || result.Adventure.Gold != 12 {
		t.Errorf("outcome snapshot not applied: hp=%d gold=%d", result.Adventure.HP, result.Adventure.Gold)
	}
	if result.Turn.HP != result.Adventure.HP || result.Turn.Gold != result.Adventure.Gold {
		t.Errorf("turn snapshot diverges from adventure state")
	}

	turns, err := svc.Turns(context.Background(), adv.ID, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != result.Adventure.TurnCount {
		t.Errorf("stored %d turns for turn count %d", len(turns), result.Adventure.TurnCount)
	}
}

func TestAdvanceRequiresActionAfterFirstTurn(t *testing.T) {
	svc, _ := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)

	if _, err := svc.Advance(context.Background(), adv.ID, "user-1", "", 0); err != nil {
		t.Fatalf("first turn with empty action should succeed: %v", err)
	}
	_, err := svc.Advance(context.Background(), adv.ID, "user-1", "", 0)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty action, got %v", err)
	}
}

func TestAdvanceClampsNegativeGold(t *testing.T) {
	svc, narrator := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)

	narrator.nextTurn = func(req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
		o := defaultOutcome()
		o.Gold = -5
		return o, nil
	}
	result, err := svc.Advance(context.Background(), adv.ID, "user-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Adventure.Gold != 0 {
		t.Errorf("gold = %d, want 0", result.Adventure.Gold)
	}
}

// wrappingStore decorates lookups with context the way a real store layer
// might; the service must still recognize the sentinel underneath.
type wrappingStore struct {
	storage.Store
}

func (w wrappingStore) GetAdventure(ctx context.Context, id string) (*models.Adventure, error) {
	adv, err := w.Store.GetAdventure(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("adventure lookup: %w", err)
	}
	return adv, nil
}

func (w wrappingStore) GetActiveAdventure(ctx context.Context, ownerID string) (*models.Adventure, error) {
	adv, err := w.Store.GetActiveAdventure(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("active lookup: %w", err)
	}
	return adv, nil
}

func TestLookupTranslatesWrappedNotFound(t *testing.T) {
	narrator := &stubNarrator{campaign: testCampaign()}
	svc := NewService(wrappingStore{storage.NewMemoryStore()}, storage.NewLocalLocker(), narrator, testConfig())
	ctx := context.Background()

	if _, err := svc.GetOwned(ctx, "no-such-id", "user-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetOwned: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Active(ctx, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Active: expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceOwnership(t *testing.T) {
	svc, _ := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)

	_, err := svc.Advance(context.Background(), adv.ID, "user-2", "attack", 0)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	_, err = svc.Advance(context.Background(), "no-such-id", "user-1", "attack", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdvanceTurnCapBlocksWithoutSideEffects(t *testing.T) {
	cfg := testConfig()
	cfg.FreeTurnCap = 2
	svc, narrator := newTestService(cfg)
	adv := mustStart(t, svc, "anon:203.0.113.7", true)

	ctx := context.Background()
	if _, err := svc.Advance(ctx, adv.ID, adv.OwnerID, "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Advance(ctx, adv.ID, adv.OwnerID, "press on", 0); err != nil {
		t.Fatal(err)
	}

	calls := len(narrator.requests)
	_, err := svc.Advance(ctx, adv.ID, adv.OwnerID, "one more", 0)
	if !errors.Is(err, ErrTurnLimit) {
		t.Fatalf("expected ErrTurnLimit, got %v", err)
	}
	if len(narrator.requests) != calls {
		t.Errorf("capped advance still invoked the narrator")
	}

	got, err := svc.GetOwned(ctx, adv.ID, adv.OwnerID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TurnCount != 2 || !got.IsActive() {
		t.Errorf("capped advance mutated state: turns=%d status=%s", got.TurnCount, got.Status)
	}
}

func TestAdvanceNarratorFailureIsRetryable(t *testing.T) {
	svc, narrator := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)
	ctx := context.Background()

	narrator.nextTurn = func(req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
		return nil, fmt.Errorf("timeout")
	}
	_, err := svc.Advance(ctx, adv.ID, "user-1", "", 0)
	if !errors.Is(err, ErrNarrator) {
		t.Fatalf("expected ErrNarrator, got %v", err)
	}

	got, _ := svc.GetOwned(ctx, adv.ID, "user-1")
	if got.TurnCount != 0 {
		t.Errorf("failed turn advanced the count to %d", got.TurnCount)
	}
	turns, _ := svc.Turns(ctx, adv.ID, "user-1")
	if len(turns) != 0 {
		t.Errorf("failed turn persisted %d records", len(turns))
	}

	// The same turn number succeeds on retry.
	narrator.nextTurn = nil
	result, err := svc.Advance(ctx, adv.ID, "user-1", "", 0)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.Turn.TurnNumber != 1 {
		t.Errorf("retry got turn number %d, want 1", result.Turn.TurnNumber)
	}
}

func TestAdvanceRejectsStaleCommitAfterConcurrentTurn(t *testing.T) {
	cfg := testConfig()
	cfg.FreeTurnCap = 1
	svc, narrator := newTestService(cfg)
	adv := mustStart(t, svc, "anon:203.0.113.7", true)
	ctx := context.Background()

	// A duplicate request for the same turn completes while the first
	// request's narrator call is still in flight. The lock is not held
	// across that call, so the commit must catch the moved turn count.
	raced := false
	narrator.nextTurn = func(req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
		if !raced {
			raced = true
			if _, err := svc.Advance(ctx, adv.ID, adv.OwnerID, "", 0); err != nil {
				t.Fatalf("racing advance failed: %v", err)
			}
		}
		return defaultOutcome(), nil
	}

	_, err := svc.Advance(ctx, adv.ID, adv.OwnerID, "", 0)
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("stale commit: expected ErrNotActive, got %v", err)
	}

	got, err := svc.GetOwned(ctx, adv.ID, adv.OwnerID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TurnCount != 1 {
		t.Errorf("turn double-applied: turn_count=%d", got.TurnCount)
	}
	if got.MaxTurns > 0 && got.TurnCount > got.MaxTurns {
		t.Errorf("turn_count %d exceeds max_turns %d", got.TurnCount, got.MaxTurns)
	}
	turns, err := svc.Turns(ctx, adv.ID, adv.OwnerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 {
		t.Errorf("stored %d turn records, want 1", len(turns))
	}
}

func TestAdvanceMalformedOutcomeRejected(t *testing.T) {
	svc, narrator := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)

	narrator.nextTurn = func(req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
		o := defaultOutcome()
		o.Options = o.Options[:2]
		return o, nil
	}
	_, err := svc.Advance(context.Background(), adv.ID, "user-1", "", 0)
	if !errors.Is(err, ErrNarrator) {
		t.Fatalf("expected ErrNarrator for two options, got %v", err)
	}
}

func TestAdvanceGameOverEndings(t *testing.T) {
	cases := []struct {
		name   string
		hp     int
		ending string
	}{
		{"death at zero hp", 0, models.EndingDeath},
		{"victory with hp remaining", 15, models.EndingVictory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, narrator := newTestService(testConfig())
			adv := mustStart(t, svc, "user-1", false)

			narrator.nextTurn = func(req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
				o := defaultOutcome()
				o.GameOver = true
				o.HPCurrent = tc.hp
				o.Options = nil
				o.Inventory = []string{}
				return o, nil
			}
			result, err := svc.Advance(context.Background(), adv.ID, "user-1", "", 0)
			if err != nil {
				t.Fatal(err)
			}
			if result.Adventure.Status != models.StatusCompleted {
				t.Errorf("status = %s, want completed", result.Adventure.Status)
			}
			if result.Adventure.EndingType != tc.ending {
				t.Errorf("ending = %s, want %s", result.Adventure.EndingType, tc.ending)
			}
			if result.Epilogue == nil {
				t.Errorf("completed adventure returned no epilogue")
			}

			// No further turns on a completed adventure.
			_, err = svc.Advance(context.Background(), adv.ID, "user-1", "again", 0)
			if !errors.Is(err, ErrNotActive) {
				t.Errorf("expected ErrNotActive after completion, got %v", err)
			}
		})
	}
}

func TestEpilogueFailureDoesNotBlockCompletion(t *testing.T) {
	svc, narrator := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)

	narrator.epilogueErr = fmt.Errorf("upstream down")
	narrator.nextTurn = func(req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
		o := defaultOutcome()
		o.GameOver = true
		o.Options = nil
		return o, nil
	}
	result, err := svc.Advance(context.Background(), adv.ID, "user-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Adventure.Status != models.StatusCompleted {
		t.Errorf("completion blocked by epilogue failure")
	}
	if result.Epilogue != nil {
		t.Errorf("expected nil epilogue on failure")
	}
}

func TestAbandonActiveAdventure(t *testing.T) {
	svc, _ := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)

	got, err := svc.Abandon(context.Background(), adv.ID, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusAbandoned || got.EndingType != "" {
		t.Errorf("abandon: status=%s ending=%q", got.Status, got.EndingType)
	}

	_, err = svc.Abandon(context.Background(), adv.ID, "user-1")
	if !errors.Is(err, ErrNotActive) {
		t.Errorf("second abandon should fail with ErrNotActive, got %v", err)
	}
}

func TestAbandonAtCapCompletesAsLimitReached(t *testing.T) {
	cfg := testConfig()
	cfg.FreeTurnCap = 1
	svc, _ := newTestService(cfg)
	adv := mustStart(t, svc, "anon:203.0.113.7", true)

	ctx := context.Background()
	if _, err := svc.Advance(ctx, adv.ID, adv.OwnerID, "", 0); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Abandon(ctx, adv.ID, adv.OwnerID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCompleted || got.EndingType != models.EndingLimitReached {
		t.Errorf("cap-exhausted abandon: status=%s ending=%s", got.Status, got.EndingType)
	}
}

func TestLiftTurnCapReopensLimitReached(t *testing.T) {
	cfg := testConfig()
	cfg.FreeTurnCap = 1
	svc, _ := newTestService(cfg)
	adv := mustStart(t, svc, "anon:203.0.113.7", true)

	ctx := context.Background()
	if _, err := svc.Advance(ctx, adv.ID, adv.OwnerID, "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Abandon(ctx, adv.ID, adv.OwnerID); err != nil {
		t.Fatal(err)
	}

	got, err := svc.LiftTurnCap(ctx, adv.ID, adv.OwnerID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsActive() || got.MaxTurns != models.MaxTurnsUnlimited || got.EndingType != "" {
		t.Errorf("unlock did not reopen: status=%s max=%d ending=%q", got.Status, got.MaxTurns, got.EndingType)
	}

	if _, err := svc.Advance(ctx, adv.ID, adv.OwnerID, "press on", 0); err != nil {
		t.Errorf("advance after unlock failed: %v", err)
	}
}

func TestRestartKeepsCampaignWipesProgress(t *testing.T) {
	svc, _ := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)
	ctx := context.Background()

	if _, err := svc.Advance(ctx, adv.ID, "user-1", "", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Advance(ctx, adv.ID, "user-1", "press on", 0); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Restart(ctx, adv.ID, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TurnCount != 0 || got.HP != 30 || got.Gold != 10 {
		t.Errorf("restart did not reset derived state: turns=%d hp=%d gold=%d", got.TurnCount, got.HP, got.Gold)
	}
	if !got.IsActive() || got.EndingType != "" || got.SceneImageKey != "" {
		t.Errorf("restart left terminal state behind")
	}
	if got.CampaignJSON != adv.CampaignJSON {
		t.Errorf("restart changed the campaign")
	}

	turns, err := svc.Turns(ctx, adv.ID, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("restart left %d turns behind", len(turns))
	}
}

func TestDeleteRemovesAdventureAndTurns(t *testing.T) {
	svc, _ := newTestService(testConfig())
	adv := mustStart(t, svc, "user-1", false)
	ctx := context.Background()

	if _, err := svc.Advance(ctx, adv.ID, "user-1", "", 0); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, adv.ID, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetOwned(ctx, adv.ID, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted adventure still found: %v", err)
	}
}

func TestDailyLimitPerIP(t *testing.T) {
	svc, _ := newTestService(testConfig())
	ctx := context.Background()

	start := func(ip string) error {
		_, err := svc.Start(ctx, StartParams{
			OwnerID:   "anon:" + ip,
			IP:        ip,
			Anonymous: true,
			Character: testCharacter(),
		})
		return err
	}

	for i := 0; i < 3; i++ {
		if err := start("203.0.113.7"); err != nil {
			t.Fatalf("start %d failed: %v", i+1, err)
		}
	}
	if err := start("203.0.113.7"); !errors.Is(err, ErrDailyLimit) {
		t.Fatalf("fourth start: expected ErrDailyLimit, got %v", err)
	}

	// A different IP is unaffected.
	if err := start("198.51.100.9"); err != nil {
		t.Errorf("different IP blocked: %v", err)
	}

	status, err := svc.RateLimitStatus(ctx, "203.0.113.7")
	if err != nil {
		t.Fatal(err)
	}
	if status.Allowed || status.Used != 3 || status.Remaining != 0 {
		t.Errorf("status = %+v", status)
	}
	if status.Message == "" {
		t.Errorf("denied status carries no message")
	}
}

func TestDailyLimitRollsOverAtLocalMidnight(t *testing.T) {
	svc, _ := newTestService(testConfig())
	ctx := context.Background()

	day1 := time.Date(2026, 3, 14, 23, 50, 0, 0, time.Local)
	svc.Now = func() time.Time { return day1 }

	for i := 0; i < 3; i++ {
		if _, err := svc.Start(ctx, StartParams{
			OwnerID: "anon:203.0.113.7", IP: "203.0.113.7", Anonymous: true, Character: testCharacter(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	// Ten minutes later it is a new calendar day and the count resets.
	svc.Now = func() time.Time { return day1.Add(10 * time.Minute) }
	if _, err := svc.Start(ctx, StartParams{
		OwnerID: "anon:203.0.113.7", IP: "203.0.113.7", Anonymous: true, Character: testCharacter(),
	}); err != nil {
		t.Fatalf("start after rollover failed: %v", err)
	}

	status, _ := svc.RateLimitStatus(ctx, "203.0.113.7")
	if status.Used != 1 {
		t.Errorf("used = %d after rollover, want 1", status.Used)
	}
}

func TestAuthenticatedStartsBypassQuota(t *testing.T) {
	svc, _ := newTestService(testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Start(ctx, StartParams{
			OwnerID:   fmt.Sprintf("user-%d", i),
			IP:        "203.0.113.7",
			Anonymous: false,
			Character: testCharacter(),
		}); err != nil {
			t.Fatalf("authenticated start %d hit a quota: %v", i+1, err)
		}
	}
}

func TestListUncappedForPremiumSurvivesTouch(t *testing.T) {
	cfg := testConfig()
	cfg.ListCap = 2
	store := storage.NewMemoryStore()
	narrator := &stubNarrator{campaign: testCampaign()}
	svc := NewService(store, storage.NewLocalLocker(), narrator, cfg)
	ctx := context.Background()

	if err := store.UpsertUser(ctx, &models.User{ID: "user-1", Premium: true}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		mustStart(t, svc, "user-1", false)
	}

	// The display-name refresh every request performs must not cost the
	// premium exemption.
	if err := store.UpsertUser(ctx, &models.User{ID: "user-1", DisplayName: "Brakka"}); err != nil {
		t.Fatal(err)
	}

	advs, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(advs) != 4 {
		t.Errorf("premium owner listed %d adventures, want all 4", len(advs))
	}
}

func TestWarriorPlaythrough(t *testing.T) {
	svc, narrator := newTestService(testConfig())
	ctx := context.Background()

	adv := mustStart(t, svc, "u1", false)
	if adv.HP != 30 || adv.Gold != 10 || len(adv.Inventory()) != 3 {
		t.Fatalf("warrior start state: hp=%d gold=%d inv=%v", adv.HP, adv.Gold, adv.Inventory())
	}

	narrator.nextTurn = func(req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
		return &interfaces.TurnOutcome{
			Narrative:    "A goblin ambush costs you blood but fills your purse.",
			VisualPrompt: "a forest road after an ambush",
			HPCurrent:    25,
			Gold:         15,
			Inventory:    []string{"Greatsword", "Chainmail", "Healing Potion"},
			Options:      []string{"Chase the survivors", "Tend your wounds", "Search the bodies"},
		}, nil
	}
	first, err := svc.Advance(ctx, adv.ID, "u1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if first.Adventure.TurnCount != 1 || first.Adventure.HP != 25 || first.Adventure.Gold != 15 {
		t.Errorf("after turn 1: turns=%d hp=%d gold=%d", first.Adventure.TurnCount, first.Adventure.HP, first.Adventure.Gold)
	}
	if first.Turn.TurnNumber != 1 {
		t.Errorf("turn record number = %d", first.Turn.TurnNumber)
	}

	narrator.nextTurn = func(req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
		return &interfaces.TurnOutcome{
			Narrative: "The second blade finds your heart. Darkness takes you.",
			HPCurrent: 0,
			Gold:      15,
			Inventory: []string{"Greatsword"},
			Options:   []string{},
			GameOver:  true,
		}, nil
	}
	second, err := svc.Advance(ctx, adv.ID, "u1", "chase the survivors", 0)
	if err != nil {
		t.Fatal(err)
	}
	if second.Adventure.Status != models.StatusCompleted || second.Adventure.EndingType != models.EndingDeath {
		t.Errorf("after death: status=%s ending=%s", second.Adventure.Status, second.Adventure.EndingType)
	}
	if second.Adventure.TurnCount != 2 {
		t.Errorf("turn count = %d, want 2", second.Adventure.TurnCount)
	}

	turns, err := svc.Turns(ctx, adv.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Errorf("stored %d turn records, want 2", len(turns))
	}
}

func TestListCapForFreeOwners(t *testing.T) {
	cfg := testConfig()
	cfg.ListCap = 2
	svc, _ := newTestService(cfg)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		mustStart(t, svc, "user-1", false)
	}
	advs, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(advs) != 2 {
		t.Errorf("listed %d adventures, want cap of 2", len(advs))
	}
}
