package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Adventure status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
)

// Ending types, set only when an adventure leaves the active status.
const (
	EndingVictory      = "victory"
	EndingDeath        = "death"
	EndingLimitReached = "limit_reached"
)

// MaxTurnsUnlimited disables the per-adventure turn cap.
const MaxTurnsUnlimited = -1

// User is an identity issued by the external auth collaborator.
// Rows are upserted by id on first sight and never deleted here.
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string    `gorm:"size:128" json:"display_name"`
	Email       string    `gorm:"size:255" json:"email,omitempty"`
	Premium     bool      `json:"premium"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Character is the player identity fixed at adventure creation.
type Character struct {
	Name        string `gorm:"size:128" json:"name"`
	Race        string `gorm:"size:64" json:"race"`
	Class       string `gorm:"size:64" json:"class"`
	Gender      string `gorm:"size:32" json:"gender"`
	Description string `gorm:"type:text" json:"description"`
}

// Campaign is the immutable story skeleton produced once at creation.
type Campaign struct {
	Title           string   `json:"title"`
	Acts            []string `json:"acts"`
	PossibleEndings []string `json:"possible_endings"`
	Backstory       string   `json:"backstory"`
}

// Valid reports whether the campaign is usable as generator context.
func (c Campaign) Valid() bool {
	return c.Title != "" && len(c.Acts) > 0 && len(c.PossibleEndings) > 0
}

// Adventure is one player's playthrough.
type Adventure struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	OwnerID   string    `gorm:"index;size:64" json:"owner_id"`
	Character Character `gorm:"embedded;embeddedPrefix:character_" json:"character"`

	// CampaignJSON is the serialized Campaign, fixed at creation.
	CampaignJSON string `gorm:"type:text" json:"-"`

	HP            int    `json:"hp"`
	Gold          int    `json:"gold"`
	InventoryJSON string `gorm:"type:text" json:"-"`

	TurnCount int    `json:"turn_count"`
	MaxTurns  int    `json:"max_turns"` // -1 means unlimited
	Status    string `gorm:"size:32;index" json:"status"`

	// EndingType is set when the adventure completes; null-but-terminal
	// for abandoned adventures.
	EndingType string `gorm:"size:32" json:"ending_type,omitempty"`

	// SceneImageKey references the last rendered scene in the image cache.
	SceneImageKey string `gorm:"size:64" json:"scene_image_key,omitempty"`

	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastPlayedAt time.Time      `json:"last_played_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// Campaign deserializes the stored campaign blob.
func (a *Adventure) Campaign() (Campaign, error) {
	var c Campaign
	if a.CampaignJSON == "" {
		return c, nil
	}
	err := json.Unmarshal([]byte(a.CampaignJSON), &c)
	return c, err
}

// SetCampaign serializes and stores the campaign blob.
func (a *Adventure) SetCampaign(c Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	a.CampaignJSON = string(data)
	return nil
}

// Inventory deserializes the stored item list, preserving order.
func (a *Adventure) Inventory() []string {
	if a.InventoryJSON == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(a.InventoryJSON), &items); err != nil {
		return nil
	}
	return items
}

// SetInventory serializes and stores the item list.
func (a *Adventure) SetInventory(items []string) {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	a.InventoryJSON = string(data)
}

// IsActive reports whether turns may still be applied.
func (a *Adventure) IsActive() bool {
	return a.Status == StatusActive
}

// TurnLimitReached reports whether the free-tier cap closes further play.
func (a *Adventure) TurnLimitReached() bool {
	return a.MaxTurns > 0 && a.TurnCount >= a.MaxTurns
}

// Turn is an immutable history entry belonging to an Adventure.
// Exactly turns 1..TurnCount exist for an adventure; the snapshot fields
// of the highest turn equal the adventure's current derived state.
type Turn struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	AdventureID string `gorm:"index:idx_adventure_turn,unique;size:64" json:"adventure_id"`
	TurnNumber  int    `gorm:"index:idx_adventure_turn,unique" json:"turn_number"`

	PlayerAction string `gorm:"type:text" json:"player_action"`
	Narrative    string `gorm:"type:text" json:"narrative"`
	VisualPrompt string `gorm:"type:text" json:"visual_prompt,omitempty"`

	HP            int    `json:"hp"`
	Gold          int    `json:"gold"`
	InventoryJSON string `gorm:"type:text" json:"-"`
	OptionsJSON   string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Inventory deserializes the post-turn inventory snapshot.
func (t *Turn) Inventory() []string {
	if t.InventoryJSON == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(t.InventoryJSON), &items); err != nil {
		return nil
	}
	return items
}

// SetInventory serializes the post-turn inventory snapshot.
func (t *Turn) SetInventory(items []string) {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	t.InventoryJSON = string(data)
}

// Options deserializes the option strings offered to the player next.
func (t *Turn) Options() []string {
	if t.OptionsJSON == "" {
		return nil
	}
	var opts []string
	if err := json.Unmarshal([]byte(t.OptionsJSON), &opts); err != nil {
		return nil
	}
	return opts
}

// SetOptions serializes the option strings offered to the player next.
func (t *Turn) SetOptions(opts []string) {
	if opts == nil {
		opts = []string{}
	}
	data, _ := json.Marshal(opts)
	t.OptionsJSON = string(data)
}

// RateLimitCounter tracks anonymous session starts per IP per calendar day.
type RateLimitCounter struct {
	IP                string    `gorm:"primaryKey;size:64" json:"ip"`
	GamesStartedToday int       `json:"games_started_today"`
	LastResetDate     time.Time `json:"last_reset_date"`
	UpdatedAt         time.Time `json:"updated_at"`
}
