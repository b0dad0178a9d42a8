package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityStatus is the user-facing result of one scheduler or funding step
type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivitySkipped ActivityStatus = "skipped"
	ActivityFailed  ActivityStatus = "failed"
	ActivityStopped ActivityStatus = "stopped"
	ActivityFunded  ActivityStatus = "funded"
)

// JSONMap is a jsonb column
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("jsonb value is not a byte slice")
	}
	return json.Unmarshal(raw, j)
}

// ActivityLog is the append-only feed shown to the owner.
// Degraded marks entries backed by an unverified credit.
type ActivityLog struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	OwnerID     string          `gorm:"column:owner_id;size:100;not null;index" json:"owner_id"`
	SessionID   string          `gorm:"column:session_id;size:36;index" json:"session_id,omitempty"`
	WalletIndex int             `gorm:"column:wallet_index;not null;default:-1" json:"wallet_index"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(38,18);not null;default:0" json:"amount"`
	Status      ActivityStatus  `gorm:"column:status;size:20;not null" json:"status"`
	TxRef       string          `gorm:"column:tx_ref;size:128" json:"tx_ref,omitempty"`
	Message     string          `gorm:"column:message;type:text" json:"message"`
	Degraded    bool            `gorm:"column:degraded;not null;default:false" json:"degraded"`
	Meta        JSONMap         `gorm:"column:meta;type:jsonb" json:"meta,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "bump_activity_logs"
}

// All lists every model the store migrates
func All() []interface{} {
	return []interface{}{
		&Session{},
		&WorkerWallet{},
		&CreditEntry{},
		&CreditReceipt{},
		&ActivityLog{},
	}
}
