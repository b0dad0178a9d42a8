package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"bumpcontrol/internal/models"
	"bumpcontrol/internal/session"

	log "github.com/sirupsen/logrus"
)

// RunLoop drives one session in the caller's goroutine: iterate, sleep the
// session interval, repeat until the stored status is no longer running.
// unit scales IntervalSeconds and is time.Second outside tests.
func (it *Iterator) RunLoop(ctx context.Context, sessionID string, unit time.Duration) error {
	interval := 2 * unit
	for {
		s, err := it.Step(ctx, sessionID)
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			return err
		case err != nil:
			log.WithField("session", sessionID).Errorf("> iteration failed: %v", err)
		case !s.IsRunning():
			return nil
		default:
			interval = time.Duration(s.IntervalSeconds) * unit
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// InlineRunner starts a RunLoop goroutine per adopted session. It serves
// deployments without the background worker.
type InlineRunner struct {
	it   *Iterator
	unit time.Duration
	ctx  context.Context

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func NewInlineRunner(ctx context.Context, it *Iterator, unit time.Duration) *InlineRunner {
	if unit <= 0 {
		unit = time.Second
	}
	return &InlineRunner{it: it, unit: unit, ctx: ctx, running: make(map[string]struct{})}
}

// Adopt starts a loop for s unless one already runs for it
func (r *InlineRunner) Adopt(s *models.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[s.ID]; ok {
		return false
	}
	r.running[s.ID] = struct{}{}
	r.wg.Add(1)
	go func(id string) {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, id)
			r.mu.Unlock()
		}()
		if err := r.it.RunLoop(r.ctx, id, r.unit); err != nil && !errors.Is(err, context.Canceled) {
			log.WithField("session", id).Errorf("> inline loop ended: %v", err)
		}
	}(s.ID)
	return true
}

// Wait blocks until every loop has returned
func (r *InlineRunner) Wait() {
	r.wg.Wait()
}
