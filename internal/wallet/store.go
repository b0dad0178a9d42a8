// Package wallet stores the worker wallets of each owner's pool
package wallet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"bumpcontrol/internal/models"

	"gorm.io/gorm"
)

var (
	ErrWalletNotFound = errors.New("worker wallet not found")
	ErrWalletExists   = errors.New("worker wallet already exists")
)

type Store interface {
	Get(ctx context.Context, owner string, index int) (*models.WorkerWallet, error)
	GetByAddress(ctx context.Context, address string) (*models.WorkerWallet, error)
	Create(ctx context.Context, w *models.WorkerWallet) error
	List(ctx context.Context, owner string) ([]models.WorkerWallet, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Get(ctx context.Context, owner string, index int) (*models.WorkerWallet, error) {
	var w models.WorkerWallet
	err := g.db.WithContext(ctx).Where("owner_id = ? AND wallet_index = ?", owner, index).First(&w).Error
	return found(&w, err)
}

func (g *GormStore) GetByAddress(ctx context.Context, address string) (*models.WorkerWallet, error) {
	var w models.WorkerWallet
	err := g.db.WithContext(ctx).Where("address = ?", address).First(&w).Error
	return found(&w, err)
}

func (g *GormStore) Create(ctx context.Context, w *models.WorkerWallet) error {
	err := g.db.WithContext(ctx).Create(w).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrWalletExists
	}
	return err
}

func (g *GormStore) List(ctx context.Context, owner string) ([]models.WorkerWallet, error) {
	var wallets []models.WorkerWallet
	err := g.db.WithContext(ctx).Where("owner_id = ?", owner).Order("wallet_index").Find(&wallets).Error
	return wallets, err
}

func found(w *models.WorkerWallet, err error) (*models.WorkerWallet, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint
	wallets []models.WorkerWallet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(_ context.Context, owner string, index int) (*models.WorkerWallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.wallets {
		if w.OwnerID == owner && w.WalletIndex == index {
			return &w, nil
		}
	}
	return nil, ErrWalletNotFound
}

func (m *MemoryStore) GetByAddress(_ context.Context, address string) (*models.WorkerWallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.wallets {
		if w.Address == address {
			return &w, nil
		}
	}
	return nil, ErrWalletNotFound
}

func (m *MemoryStore) Create(_ context.Context, w *models.WorkerWallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.wallets {
		if (existing.OwnerID == w.OwnerID && existing.WalletIndex == w.WalletIndex) || existing.Address == w.Address {
			return ErrWalletExists
		}
	}
	m.nextID++
	w.ID = m.nextID
	w.CreatedAt = time.Now()
	m.wallets = append(m.wallets, *w)
	return nil
}

func (m *MemoryStore) List(_ context.Context, owner string) ([]models.WorkerWallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.WorkerWallet
	for _, w := range m.wallets {
		if w.OwnerID == owner {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WalletIndex < out[j].WalletIndex })
	return out, nil
}
