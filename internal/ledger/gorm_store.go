package ledger

import (
	"context"
	"errors"
	"time"

	"bumpcontrol/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the postgres-backed ledger store
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Entry(ctx context.Context, owner, scope string) (*models.CreditEntry, error) {
	var entry models.CreditEntry
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND scope = ?", owner, scope).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *GormStore) Entries(ctx context.Context, owner string) ([]models.CreditEntry, error) {
	var entries []models.CreditEntry
	if err := s.db.WithContext(ctx).Where("owner_id = ?", owner).Order("id").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormStore) EnsureEntry(ctx context.Context, owner, scope string) (*models.CreditEntry, error) {
	entry := models.CreditEntry{OwnerID: owner, Scope: scope, Balance: decimal.Zero}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "scope"}},
			DoNothing: true,
		}).
		Create(&entry).Error
	if err != nil {
		return nil, err
	}
	return s.Entry(ctx, owner, scope)
}

func (s *GormStore) SwapBalance(ctx context.Context, id uint, version int64, balance decimal.Decimal) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.CreditEntry{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"balance":    balance,
			"version":    version + 1,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) InsertReceipt(ctx context.Context, receipt *models.CreditReceipt) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_ref"}},
			DoNothing: true,
		}).
		Create(receipt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) Receipt(ctx context.Context, txRef string) (*models.CreditReceipt, error) {
	var receipt models.CreditReceipt
	err := s.db.WithContext(ctx).Where("tx_ref = ?", txRef).First(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (s *GormStore) Atomically(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
