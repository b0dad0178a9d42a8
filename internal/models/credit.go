package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditEntry holds the spendable credit of one scope ("main" or "worker:<i>").
// Rows are created lazily and never deleted.
type CreditEntry struct {
	ID        uint            `gorm:"primarykey" json:"id"`
	OwnerID   string          `gorm:"column:owner_id;size:100;not null;uniqueIndex:idx_credit_owner_scope" json:"owner_id"`
	Scope     string          `gorm:"column:scope;size:32;not null;uniqueIndex:idx_credit_owner_scope" json:"scope"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(38,18);not null;default:0" json:"balance"`
	Version   int64           `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CreditEntry) TableName() string {
	return "bump_credit_entries"
}

// ReceiptKind tells which operation consumed an external reference
type ReceiptKind string

const (
	ReceiptDeposit      ReceiptKind = "deposit"
	ReceiptCredit       ReceiptKind = "credit"
	ReceiptDistribution ReceiptKind = "distribution"
)

// Verification describes how an inbound amount was confirmed
type Verification string

const (
	VerificationOnchain  Verification = "onchain"
	VerificationFallback Verification = "fallback"
	VerificationInternal Verification = "internal"
)

// CreditReceipt makes credits idempotent: one row per external reference.
type CreditReceipt struct {
	ID           uint            `gorm:"primarykey" json:"id"`
	TxRef        string          `gorm:"column:tx_ref;size:128;not null;uniqueIndex" json:"tx_ref"`
	OwnerID      string          `gorm:"column:owner_id;size:100;not null;index" json:"owner_id"`
	Kind         ReceiptKind     `gorm:"column:kind;size:20;not null" json:"kind"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(38,18);not null" json:"amount"`
	Verified     bool            `gorm:"column:verified;not null;default:true" json:"verified"`
	Verification Verification    `gorm:"column:verification;size:20;not null" json:"verification"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CreditReceipt) TableName() string {
	return "bump_credit_receipts"
}
