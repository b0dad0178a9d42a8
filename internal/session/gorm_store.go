package session

import (
	"context"
	"errors"
	"time"

	"bumpcontrol/internal/models"

	"gorm.io/gorm"
)

// GormStore relies on the partial unique index
// bump_sessions(owner_id) WHERE status = 'running' to close the race
// between two concurrent Create calls.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Create(ctx context.Context, s *models.Session) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Session{}).
			Where("owner_id = ? AND status = ?", s.OwnerID, models.SessionRunning).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSessionRunning
		}
		err := tx.Create(s).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSessionRunning
		}
		return err
	})
}

func (g *GormStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	return found(&s, err, ErrSessionNotFound)
}

func (g *GormStore) Latest(ctx context.Context, owner string) (*models.Session, error) {
	var s models.Session
	err := g.db.WithContext(ctx).Where("owner_id = ?", owner).Order("started_at DESC").First(&s).Error
	return found(&s, err, ErrSessionNotFound)
}

func (g *GormStore) Running(ctx context.Context, owner string) (*models.Session, error) {
	var s models.Session
	err := g.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", owner, models.SessionRunning).
		First(&s).Error
	return found(&s, err, ErrNoRunningSession)
}

func (g *GormStore) ListRunning(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := g.db.WithContext(ctx).
		Where("status = ?", models.SessionRunning).
		Order("started_at").
		Find(&sessions).Error
	return sessions, err
}

func (g *GormStore) Update(ctx context.Context, s *models.Session) error {
	now := time.Now()
	result := g.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Updates(map[string]interface{}{
			"rotation_index":       s.RotationIndex,
			"consecutive_failures": s.ConsecutiveFailures,
			"consecutive_skips":    s.ConsecutiveSkips,
			"status":               s.Status,
			"stop_reason":          s.StopReason,
			"stopped_at":           s.StoppedAt,
			"version":              s.Version + 1,
			"updated_at":           now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := g.Get(ctx, s.ID); err != nil {
			return err
		}
		return ErrStaleSession
	}
	s.Version++
	s.UpdatedAt = now
	return nil
}

func found(s *models.Session, err error, notFound error) (*models.Session, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
