package models

import "time"

// WorkerWallet is one of the rotating accounts owned by an owner's pool.
// Wallets outlive sessions.
type WorkerWallet struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	OwnerID      string    `gorm:"column:owner_id;size:100;not null;uniqueIndex:idx_worker_wallet_owner_index" json:"owner_id"`
	WalletIndex  int       `gorm:"column:wallet_index;not null;uniqueIndex:idx_worker_wallet_owner_index" json:"wallet_index"`
	Address      string    `gorm:"column:address;size:64;not null;uniqueIndex" json:"address"`
	EncryptedKey string    `gorm:"column:encrypted_key;type:text;not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (WorkerWallet) TableName() string {
	return "bump_worker_wallets"
}
