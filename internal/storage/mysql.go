package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"emberquest/server/internal/config"
	"emberquest/server/internal/models"
)

type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Adventure{},
		&models.Turn{},
		&models.RateLimitCounter{},
	); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) GetDB() *gorm.DB {
	return s.db
}

// Transaction helper
func (s *MySQLStore) WithTx(fn func(*gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// UpsertUser creates or refreshes a user row. Only the display name is
// updated on conflict: premium and email are owned by the external auth
// collaborator and must survive routine request-path upserts.
func (s *MySQLStore) UpsertUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
	}).Create(user).Error
}

func (s *MySQLStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *MySQLStore) CreateAdventure(ctx context.Context, adv *models.Adventure) error {
	return s.db.WithContext(ctx).Create(adv).Error
}

func (s *MySQLStore) GetAdventure(ctx context.Context, id string) (*models.Adventure, error) {
	var adv models.Adventure
	if err := s.db.WithContext(ctx).First(&adv, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &adv, nil
}

func (s *MySQLStore) GetActiveAdventure(ctx context.Context, ownerID string) (*models.Adventure, error) {
	var adv models.Adventure
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, models.StatusActive).
		Order("last_played_at DESC").
		First(&adv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &adv, nil
}

func (s *MySQLStore) ListAdventures(ctx context.Context, ownerID string, limit int) ([]*models.Adventure, error) {
	var advs []*models.Adventure
	q := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("last_played_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&advs).Error; err != nil {
		return nil, err
	}
	return advs, nil
}

func (s *MySQLStore) SaveAdventure(ctx context.Context, adv *models.Adventure) error {
	return s.db.WithContext(ctx).Save(adv).Error
}

func (s *MySQLStore) DeleteAdventure(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("adventure_id = ?", id).Delete(&models.Turn{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Delete(&models.Adventure{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AppendTurn commits a turn and the adventure's new derived state in one
// transaction. The session row is locked FOR UPDATE so concurrent advances
// for the same adventure serialize; a writer that lost the race fails the
// turn-number check instead of double-appending.
func (s *MySQLStore) AppendTurn(ctx context.Context, adv *models.Adventure, turn *models.Turn) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Adventure
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, "id = ?", adv.ID).Error; err != nil {
			return translate(err)
		}
		if current.TurnCount+1 != turn.TurnNumber {
			return fmt.Errorf("%w: adventure already at turn %d", ErrConflict, current.TurnCount)
		}
		if err := tx.Save(adv).Error; err != nil {
			return err
		}
		return tx.Create(turn).Error
	})
}

func (s *MySQLStore) ListTurns(ctx context.Context, adventureID string) ([]*models.Turn, error) {
	var turns []*models.Turn
	err := s.db.WithContext(ctx).
		Where("adventure_id = ?", adventureID).
		Order("turn_number ASC").
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// ResetAdventure commits a restart: reset derived state and bulk turn
// deletion together or not at all.
func (s *MySQLStore) ResetAdventure(ctx context.Context, adv *models.Adventure) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("adventure_id = ?", adv.ID).Delete(&models.Turn{}).Error; err != nil {
			return err
		}
		return tx.Save(adv).Error
	})
}

func (s *MySQLStore) GetRateLimit(ctx context.Context, ip string) (*models.RateLimitCounter, error) {
	var counter models.RateLimitCounter
	if err := s.db.WithContext(ctx).First(&counter, "ip = ?", ip).Error; err != nil {
		return nil, translate(err)
	}
	return &counter, nil
}

func (s *MySQLStore) UpsertRateLimit(ctx context.Context, counter *models.RateLimitCounter) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ip"}},
		DoUpdates: clause.AssignmentColumns([]string{"games_started_today", "last_reset_date", "updated_at"}),
	}).Create(counter).Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
