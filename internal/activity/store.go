// Package activity records the per-owner feed of trades, skips, stops and
// funding events. Every sink is best effort.
package activity

import (
	"context"
	"sort"
	"sync"
	"time"

	"bumpcontrol/internal/models"

	"gorm.io/gorm"
)

type Sink interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
}

// Store is a Sink that can be read back newest first
type Store interface {
	Sink
	List(ctx context.Context, owner string, page, pageSize int) ([]models.ActivityLog, int64, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Append(ctx context.Context, entry *models.ActivityLog) error {
	return g.db.WithContext(ctx).Create(entry).Error
}

func (g *GormStore) List(ctx context.Context, owner string, page, pageSize int) ([]models.ActivityLog, int64, error) {
	var total int64
	q := g.db.WithContext(ctx).Model(&models.ActivityLog{}).Where("owner_id = ?", owner)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []models.ActivityLog
	err := q.Order("created_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&logs).Error
	return logs, total, err
}

type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint
	logs   []models.ActivityLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, entry *models.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *MemoryStore) List(_ context.Context, owner string, page, pageSize int) ([]models.ActivityLog, int64, error) {
	m.mu.RLock()
	var mine []models.ActivityLog
	for _, l := range m.logs {
		if l.OwnerID == owner {
			mine = append(mine, l)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(mine, func(i, j int) bool { return mine[i].ID > mine[j].ID })
	total := int64(len(mine))
	start := (page - 1) * pageSize
	if start >= len(mine) {
		return []models.ActivityLog{}, total, nil
	}
	end := start + pageSize
	if end > len(mine) {
		end = len(mine)
	}
	return mine[start:end], total, nil
}
