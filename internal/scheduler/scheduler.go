package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"bumpcontrol/internal/models"
	"bumpcontrol/internal/session"
	"bumpcontrol/pkg/metrics"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

type Options struct {
	// SyncSpec is the cron spec of the adoption sweep, "@every 5s" by default.
	SyncSpec string
	// IntervalUnit scales IntervalSeconds, time.Second by default.
	IntervalUnit time.Duration
	// Lease keeps other processes from driving the same owner. Optional.
	Lease    Lease
	LeaseTTL time.Duration
}

type driverHandle struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// Scheduler is the long-lived driver. It periodically lists running
// sessions, adopts unseen ones and keeps one timer goroutine per owner.
type Scheduler struct {
	it       *Iterator
	sessions session.Store
	opts     Options

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	drivers map[string]*driverHandle
}

func New(it *Iterator, sessions session.Store, opts Options) *Scheduler {
	if opts.SyncSpec == "" {
		opts.SyncSpec = "@every 5s"
	}
	if opts.IntervalUnit <= 0 {
		opts.IntervalUnit = time.Second
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = time.Minute
	}
	return &Scheduler{
		it:       it,
		sessions: sessions,
		opts:     opts,
		drivers:  make(map[string]*driverHandle),
	}
}

// Start runs an adoption sweep immediately and then on SyncSpec
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New(cron.WithSeconds())
	if _, err := s.cron.AddFunc(s.opts.SyncSpec, func() { s.Sync(s.ctx) }); err != nil {
		s.cancel()
		return err
	}
	s.Sync(s.ctx)
	s.cron.Start()
	log.Infof("> scheduler started, sync %s", s.opts.SyncSpec)
	return nil
}

// Stop halts the sweep, releases every driver and waits for in-flight
// iterations to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Info("> scheduler stopped")
}

// Sync adopts running sessions and releases drivers whose session is gone
func (s *Scheduler) Sync(ctx context.Context) {
	running, err := s.sessions.ListRunning(ctx)
	if err != nil {
		log.Errorf("> list running sessions failed: %v", err)
		return
	}

	current := make(map[string]string, len(running))
	for i := range running {
		current[running[i].OwnerID] = running[i].ID
		s.Adopt(&running[i])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, h := range s.drivers {
		if current[owner] != h.sessionID {
			h.cancel()
		}
	}
}

// Adopt starts a driver for sess. It returns false when the owner already
// has a driver here or another process holds the owner's lease.
func (s *Scheduler) Adopt(sess *models.Session) bool {
	if s.ctx == nil || s.ctx.Err() != nil || !sess.IsRunning() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drivers[sess.OwnerID]; ok {
		return false
	}
	if s.opts.Lease != nil {
		ok, err := s.opts.Lease.Acquire(s.ctx, sess.OwnerID, s.leaseTTL(sess))
		if err != nil {
			log.WithField("owner", sess.OwnerID).Warnf("> lease acquire failed: %v", err)
			return false
		}
		if !ok {
			return false
		}
	}

	dctx, cancel := context.WithCancel(s.ctx)
	h := &driverHandle{sessionID: sess.ID, cancel: cancel, done: make(chan struct{})}
	s.drivers[sess.OwnerID] = h
	metrics.ActiveSessions.Inc()
	s.wg.Add(1)
	go s.drive(dctx, sess.OwnerID, h)

	log.WithFields(log.Fields{"owner": sess.OwnerID, "session": sess.ID}).Info("> session adopted")
	return true
}

// Active lists the owners currently driven by this scheduler
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners := make([]string, 0, len(s.drivers))
	for owner := range s.drivers {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

func (s *Scheduler) drive(ctx context.Context, owner string, h *driverHandle) {
	logger := log.WithFields(log.Fields{"owner": owner, "session": h.sessionID})
	defer func() {
		s.mu.Lock()
		if s.drivers[owner] == h {
			delete(s.drivers, owner)
		}
		s.mu.Unlock()
		if s.opts.Lease != nil {
			if err := s.opts.Lease.Release(context.Background(), owner); err != nil {
				logger.Warnf("> lease release failed: %v", err)
			}
		}
		metrics.ActiveSessions.Dec()
		close(h.done)
		s.wg.Done()
		logger.Info("> session released")
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// a release lets the current iteration finish
		cur, err := s.it.Step(context.WithoutCancel(ctx), h.sessionID)
		var next time.Duration
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			return
		case err != nil:
			logger.Errorf("> iteration failed, retrying next interval: %v", err)
			next = s.opts.IntervalUnit * 2
			if cur != nil {
				next = time.Duration(cur.IntervalSeconds) * s.opts.IntervalUnit
			}
		case !cur.IsRunning():
			return
		default:
			next = time.Duration(cur.IntervalSeconds) * s.opts.IntervalUnit
		}

		if s.opts.Lease != nil && cur != nil {
			ok, err := s.opts.Lease.Renew(ctx, owner, s.leaseTTL(cur))
			if err == nil && !ok {
				logger.Warn("> lease lost, releasing session")
				return
			}
			if err != nil {
				logger.Warnf("> lease renew failed: %v", err)
			}
		}
		timer.Reset(next)
	}
}

func (s *Scheduler) leaseTTL(sess *models.Session) time.Duration {
	ttl := 3 * time.Duration(sess.IntervalSeconds) * s.opts.IntervalUnit
	if ttl < s.opts.LeaseTTL {
		ttl = s.opts.LeaseTTL
	}
	return ttl
}
