package storage

import (
	"context"
	"errors"

	"emberquest/server/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a write loses a serialization race, e.g. two
// turns claiming the same turn number.
var ErrConflict = errors.New("write conflict")

// Store is the single source of truth for game state. Every request reloads
// state through it and writes back at the end; no in-process session state
// survives between requests.
type Store interface {
	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	CreateAdventure(ctx context.Context, adv *models.Adventure) error
	GetAdventure(ctx context.Context, id string) (*models.Adventure, error)
	GetActiveAdventure(ctx context.Context, ownerID string) (*models.Adventure, error)
	ListAdventures(ctx context.Context, ownerID string, limit int) ([]*models.Adventure, error)
	SaveAdventure(ctx context.Context, adv *models.Adventure) error
	DeleteAdventure(ctx context.Context, id string) error

	// AppendTurn persists an applied turn atomically: the adventure's new
	// derived state and the turn record commit together or not at all. The
	// turn's number must be exactly one past the committed turn count.
	AppendTurn(ctx context.Context, adv *models.Adventure, turn *models.Turn) error

	ListTurns(ctx context.Context, adventureID string) ([]*models.Turn, error)

	// ResetAdventure persists a restart: the adventure's reset state and the
	// bulk deletion of its turns commit together.
	ResetAdventure(ctx context.Context, adv *models.Adventure) error

	GetRateLimit(ctx context.Context, ip string) (*models.RateLimitCounter, error)
	UpsertRateLimit(ctx context.Context, counter *models.RateLimitCounter) error
}
