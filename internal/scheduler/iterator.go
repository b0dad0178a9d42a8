// Package scheduler drives running sessions. The background Scheduler and
// the request-scoped RunLoop share Iterator.Step, so both apply the same
// rotation policy.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"bumpcontrol/internal/executor"
	"bumpcontrol/internal/models"
	"bumpcontrol/internal/rotation"
	"bumpcontrol/internal/session"
	"bumpcontrol/pkg/metrics"

	log "github.com/sirupsen/logrus"
)

// Executor performs one trade attempt
type Executor interface {
	Execute(ctx context.Context, owner string, walletIndex int, s *models.Session) executor.Outcome
}

const defaultWalletCount = 5

// Iterator runs single iterations. Trades of one owner are serialized
// through a per-owner lock held by the Iterator.
type Iterator struct {
	sessions session.Store
	exec     Executor
	activity executor.ActivitySink

	mu      sync.Mutex
	flights map[string]*flight
}

// flight serializes one owner's trades. refs counts the steps holding or
// waiting for it; the entry is dropped when the last one leaves.
type flight struct {
	sync.Mutex
	refs int
}

func NewIterator(sessions session.Store, exec Executor, activity executor.ActivitySink) *Iterator {
	return &Iterator{
		sessions: sessions,
		exec:     exec,
		activity: activity,
		flights:  make(map[string]*flight),
	}
}

func (it *Iterator) acquire(owner string) *flight {
	it.mu.Lock()
	f, ok := it.flights[owner]
	if !ok {
		f = &flight{}
		it.flights[owner] = f
	}
	f.refs++
	it.mu.Unlock()

	f.Lock()
	return f
}

func (it *Iterator) release(owner string, f *flight) {
	f.Unlock()
	it.mu.Lock()
	defer it.mu.Unlock()
	f.refs--
	if f.refs == 0 {
		delete(it.flights, owner)
	}
}

func (it *Iterator) inFlight() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return len(it.flights)
}
// Step performs one iteration of sessionID and returns the session as
// persisted afterwards. A session that is no longer running is returned
// untouched and no trade happens. A panic in the iteration is recovered
// and reported as an error.
func (it *Iterator) Step(ctx context.Context, sessionID string) (s *models.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("session", sessionID).Errorf("> iteration panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("iteration panic: %v", r)
		}
	}()

	s, err = it.sessions.Get(ctx, sessionID)
	if err != nil || !s.IsRunning() {
		return s, err
	}

	owner := s.OwnerID
	f := it.acquire(owner)
	defer it.release(owner, f)

	// status may have changed while waiting for the owner lock
	s, err = it.sessions.Get(ctx, sessionID)
	if err != nil || !s.IsRunning() {
		return s, err
	}

	count := s.WalletCount
	if count <= 0 {
		count = defaultWalletCount
	}
	index := s.RotationIndex % count
	if index < 0 {
		index += count
	}

	outcome := it.exec.Execute(ctx, s.OwnerID, index, s)
	decision := rotation.Decide(rotation.State{
		Index:       index,
		WalletCount: count,
		Failures:    s.ConsecutiveFailures,
		Skips:       s.ConsecutiveSkips,
	}, outcome.Kind)

	log.WithFields(log.Fields{
		"owner":   s.OwnerID,
		"session": s.ID,
		"wallet":  index,
		"outcome": outcome.Kind.String(),
		"action":  decision.Action.String(),
	}).Infof("> iteration done: %s", outcome)

	return it.persist(context.WithoutCancel(ctx), s, decision)
}

func (it *Iterator) persist(ctx context.Context, s *models.Session, decision rotation.Decision) (*models.Session, error) {
	for attempt := 0; attempt < 3; attempt++ {
		s.RotationIndex = decision.Next
		s.ConsecutiveFailures = decision.Failures
		s.ConsecutiveSkips = decision.Skips
		if decision.Action.IsStop() {
			session.MarkStopped(s, stopReason(decision.Action), time.Now())
		}

		err := it.sessions.Update(ctx, s)
		if err == nil {
			if decision.Action.IsStop() {
				it.announceStop(ctx, s)
			}
			return s, nil
		}
		if !errors.Is(err, session.ErrStaleSession) {
			return s, fmt.Errorf("persist session %s: %w", s.ID, err)
		}

		fresh, err := it.sessions.Get(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if !fresh.IsRunning() {
			// an external stop won the race
			return fresh, nil
		}
		s = fresh
	}
	return s, session.ErrStaleSession
}

func (it *Iterator) announceStop(ctx context.Context, s *models.Session) {
	metrics.SessionsStopped.WithLabelValues(string(s.StopReason)).Inc()
	log.WithFields(log.Fields{"owner": s.OwnerID, "session": s.ID}).Warnf("> session stopped: %s", s.StopReason)
	if it.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		OwnerID:     s.OwnerID,
		SessionID:   s.ID,
		WalletIndex: s.RotationIndex,
		Status:      models.ActivityStopped,
		Message:     string(s.StopReason),
	}
	if err := it.activity.Append(ctx, entry); err != nil {
		log.WithField("owner", s.OwnerID).Warnf("> activity append failed: %v", err)
	}
}

func stopReason(a rotation.Action) models.StopReason {
	switch a {
	case rotation.StopAllDepleted:
		return models.StopReasonDepleted
	case rotation.StopTooManyFailures:
		return models.StopReasonTooManyFailures
	}
	return models.StopReasonNone
}
