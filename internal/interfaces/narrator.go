package interfaces

import (
	"context"
	"fmt"

	"emberquest/server/internal/models"
)

// ContextEntry is one (player action, narrator response) pair replayed to the
// generator. Response is the serialized memory projection of a turn: it never
// includes visual prompts, which are rendering hints, not narrative memory.
type ContextEntry struct {
	PlayerAction string
	Response     string
}

// SceneState is the structured state sent alongside the conversation history
// on every turn.
type SceneState struct {
	Character models.Character
	Campaign  models.Campaign
	HP        int
	Gold      int
	Inventory []string
	DiceRoll  int // 0 when the player did not roll
}

// TurnRequest is the full generator input for a single turn.
type TurnRequest struct {
	History      []ContextEntry
	PlayerAction string
	Scene        SceneState
	FirstTurn    bool
}

// TurnOutcome is the fixed-shape generator response for a single turn.
// Any missing or malformed required field is a generator failure, never a
// partial success.
type TurnOutcome struct {
	Narrative    string   `json:"narrative"`
	VisualPrompt string   `json:"visual_prompt"`
	HPCurrent    int      `json:"hp_current"`
	Gold         int      `json:"gold"`
	Inventory    []string `json:"inventory"`
	Options      []string `json:"options"`
	GameOver     bool     `json:"game_over"`
}

// Validate enforces the turn-response contract: three options during play,
// zero iff the game is over.
func (o *TurnOutcome) Validate() error {
	if o.Narrative == "" {
		return fmt.Errorf("turn outcome: missing narrative")
	}
	if o.Inventory == nil {
		return fmt.Errorf("turn outcome: missing inventory")
	}
	if o.GameOver {
		if len(o.Options) != 0 {
			return fmt.Errorf("turn outcome: game over but %d options offered", len(o.Options))
		}
		return nil
	}
	if len(o.Options) != 3 {
		return fmt.Errorf("turn outcome: expected 3 options, got %d", len(o.Options))
	}
	return nil
}

// Epilogue is the decorative closing generated when an adventure completes.
type Epilogue struct {
	Title        string `json:"epilogue_title"`
	Text         string `json:"epilogue_text"`
	EndingType   string `json:"ending_type"`
	Legacy       string `json:"legacy"`
	VisualPrompt string `json:"visual_prompt"`
}

// Narrator is the external narrative generator: an opaque, fallible
// collaborator with a fixed response contract.
type Narrator interface {
	// CreateCampaign produces the immutable story skeleton from theme seeds.
	CreateCampaign(ctx context.Context, character models.Character, themeSeeds []string) (models.Campaign, error)

	// NextTurn produces the outcome of a single turn.
	NextTurn(ctx context.Context, req *TurnRequest) (*TurnOutcome, error)

	// Epilogue produces a closing for a finished adventure. Failures here
	// never block completion.
	Epilogue(ctx context.Context, adv *models.Adventure, history []ContextEntry) (*Epilogue, error)
}

// SceneRenderer turns a visual prompt into image bytes. A nil result with a
// nil error means the renderer declined; callers tolerate images that never
// arrive.
type SceneRenderer interface {
	RenderScene(ctx context.Context, prompt string) ([]byte, error)
}
