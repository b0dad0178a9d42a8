package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a bump session
type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionStopped SessionStatus = "stopped"
)

// StopReason records why a session left the running state
type StopReason string

const (
	StopReasonNone            StopReason = ""
	StopReasonUser            StopReason = "user"
	StopReasonDepleted        StopReason = "depleted"
	StopReasonTooManyFailures StopReason = "too_many_failures"
)

// Session is one bump run configuration plus its live rotation state.
// At most one running session exists per owner.
type Session struct {
	ID                  string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	OwnerID             string          `gorm:"column:owner_id;size:100;not null;index" json:"owner_id"`
	TargetAsset         string          `gorm:"column:target_asset;size:64;not null" json:"target_asset"`
	NotionalUSD         decimal.Decimal `gorm:"column:notional_usd;type:numeric(38,18);not null" json:"notional_usd"`
	IntervalSeconds     int             `gorm:"column:interval_seconds;not null" json:"interval_seconds"`
	WalletCount         int             `gorm:"column:wallet_count;not null;default:5" json:"wallet_count"`
	RotationIndex       int             `gorm:"column:rotation_index;not null;default:0" json:"rotation_index"`
	ConsecutiveFailures int             `gorm:"column:consecutive_failures;not null;default:0" json:"consecutive_failures"`
	ConsecutiveSkips    int             `gorm:"column:consecutive_skips;not null;default:0" json:"consecutive_skips"`
	Status              SessionStatus   `gorm:"column:status;size:20;not null;index" json:"status"`
	StopReason          StopReason      `gorm:"column:stop_reason;size:32;not null;default:''" json:"stop_reason,omitempty"`
	StartedAt           time.Time       `gorm:"column:started_at;not null" json:"started_at"`
	StoppedAt           *time.Time      `gorm:"column:stopped_at" json:"stopped_at,omitempty"`
	Version             int64           `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Session) TableName() string {
	return "bump_sessions"
}

// IsRunning reports whether the session still accepts scheduler iterations
func (s *Session) IsRunning() bool {
	return s != nil && s.Status == SessionRunning
}

// Interval returns the configured pause between iterations
func (s *Session) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}
