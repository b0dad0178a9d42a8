// Package session persists bump sessions. A store never holds two running
// sessions for one owner, and updates are rejected when the caller's copy
// is stale.
package session

import (
	"context"
	"errors"

	"bumpcontrol/internal/models"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionRunning   = errors.New("owner already has a running session")
	ErrStaleSession     = errors.New("session was modified concurrently")
	ErrNoRunningSession = errors.New("owner has no running session")
)

type Store interface {
	// Create inserts a running session. It fails with ErrSessionRunning when
	// the owner already has one.
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	// Latest returns the owner's most recent session, running or not.
	Latest(ctx context.Context, owner string) (*models.Session, error)
	Running(ctx context.Context, owner string) (*models.Session, error)
	ListRunning(ctx context.Context) ([]models.Session, error)
	// Update writes s if its version is current and bumps s.Version.
	Update(ctx context.Context, s *models.Session) error
}
