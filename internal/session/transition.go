package session

import (
	"context"
	"errors"
	"time"

	"bumpcontrol/internal/models"
)

// MarkStopped moves s to stopped with reason. It is a no-op on a session
// that already stopped.
func MarkStopped(s *models.Session, reason models.StopReason, at time.Time) {
	if s.Status == models.SessionStopped {
		return
	}
	s.Status = models.SessionStopped
	s.StopReason = reason
	s.StoppedAt = &at
}

// Stop stops the owner's running session, re-reading on version conflicts.
func Stop(ctx context.Context, store Store, owner string, reason models.StopReason) (*models.Session, error) {
	for attempt := 0; attempt < 5; attempt++ {
		s, err := store.Running(ctx, owner)
		if err != nil {
			return nil, err
		}
		MarkStopped(s, reason, time.Now())
		err = store.Update(ctx, s)
		if errors.Is(err, ErrStaleSession) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, ErrStaleSession
}
