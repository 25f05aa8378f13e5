package game

import (
	"encoding/json"

	"emberquest/server/internal/interfaces"
	"emberquest/server/internal/models"
)

// PlayableState is the in-memory play state rebuilt from persisted turns.
// Context is the memory projection replayed to the narrator; Display is the
// UI projection for immediate re-display without a generator round trip.
type PlayableState struct {
	Context          []interfaces.ContextEntry
	Display          *TurnDisplay
	NeedsInitialTurn bool
}

// TurnDisplay is the last turn as the player saw it.
type TurnDisplay struct {
	Narrative  string   `json:"narrative"`
	Options    []string `json:"options"`
	LastAction string   `json:"last_action"`
}

// turnMemory is the memory projection of a turn record. The visual prompt is
// deliberately absent: it is a rendering hint, not narrative memory, and
// replaying it wastes context budget.
type turnMemory struct {
	Narrative string   `json:"narrative"`
	HPCurrent int      `json:"hp_current"`
	Gold      int      `json:"gold"`
	Inventory []string `json:"inventory"`
	Options   []string `json:"options"`
	GameOver  bool     `json:"game_over"`
}

// Reconstruct rebuilds playable state from an adventure's stored turns,
// ordered by turn number. Reconstructing turns 1..N and advancing to N+1
// sends the narrator exactly what an uninterrupted session would have.
func Reconstruct(adv *models.Adventure, turns []*models.Turn) (*PlayableState, error) {
	if len(turns) == 0 {
		return &PlayableState{NeedsInitialTurn: true}, nil
	}

	entries := make([]interfaces.ContextEntry, 0, len(turns))
	for _, t := range turns {
		mem := turnMemory{
			Narrative: t.Narrative,
			HPCurrent: t.HP,
			Gold:      t.Gold,
			Inventory: t.Inventory(),
			Options:   t.Options(),
			GameOver:  false,
		}
		if mem.Inventory == nil {
			mem.Inventory = []string{}
		}
		if mem.Options == nil {
			mem.Options = []string{}
		}
		if adv.Status == models.StatusCompleted && t.TurnNumber == adv.TurnCount {
			mem.GameOver = true
		}
		data, err := json.Marshal(mem)
		if err != nil {
			return nil, err
		}
		entries = append(entries, interfaces.ContextEntry{
			PlayerAction: t.PlayerAction,
			Response:     string(data),
		})
	}

	last := turns[len(turns)-1]
	return &PlayableState{
		Context: entries,
		Display: &TurnDisplay{
			Narrative:  last.Narrative,
			Options:    last.Options(),
			LastAction: last.PlayerAction,
		},
	}, nil
}
