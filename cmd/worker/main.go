package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"bumpcontrol/internal/app"
	"bumpcontrol/internal/bump"
	"bumpcontrol/internal/scheduler"
	"bumpcontrol/pkg/config"

	log "github.com/sirupsen/logrus"
)

const (
	maxErrorCount = 3 // consecutive failures before a funding message is dropped
)

// errorCounter tracks consecutive funding failures per deposit reference
type errorCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (e *errorCounter) increment(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts[key]++
	return e.counts[key]
}

func (e *errorCounter) reset(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.counts, key)
}

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	settings.ConfigureLogger(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, settings)
	if err != nil {
		log.Fatal("Failed to initialize: ", err)
	}
	defer a.Close()

	opts := scheduler.Options{
		SyncSpec: fmt.Sprintf("@every %s", settings.Scheduler.SyncInterval),
		LeaseTTL: settings.Scheduler.LeaseTTL,
	}
	if settings.Redis.Enabled() {
		client, err := config.OpenRedis(ctx, settings.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis: ", err)
		}
		defer client.Close()
		opts.Lease = scheduler.NewRedisLease(client, "")
		log.Info("redis lease enabled")
	}

	sched := scheduler.New(a.Iterator, a.Sessions, opts)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler: ", err)
	}
	defer sched.Stop()

	if a.Rabbit == nil {
		log.Info("RabbitMQ not configured, funding consumer disabled")
		<-ctx.Done()
		log.Info("shutting down worker")
		return
	}

	svc := a.Service(sched)
	consumer, err := config.NewConsumer(a.Rabbit, settings.RabbitMQ.FundingQueue)
	if err != nil {
		log.Fatal("Failed to create consumer: ", err)
	}
	defer consumer.Close()

	errs := &errorCounter{counts: make(map[string]int)}
	log.Info("Bump worker started, waiting for funding messages...")
	err = consumer.Consume(ctx, func(ctx context.Context, body []byte) error {
		var msg bump.FundingMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			log.Errorf("Failed to unmarshal funding message: %v", err)
			return nil
		}
		return handleFunding(ctx, svc, errs, msg)
	})
	if err != nil {
		log.Errorf("funding consumer stopped: %v", err)
	}
	log.Info("shutting down worker")
}

func handleFunding(ctx context.Context, svc *bump.Service, errs *errorCounter, msg bump.FundingMessage) error {
	logger := log.WithFields(log.Fields{"owner": msg.Owner, "tx": msg.TxRef})

	err := svc.HandleFunding(ctx, msg)
	switch {
	case err == nil:
		errs.reset(msg.TxRef)
		logger.Info("funding applied")
		return nil
	case errors.Is(err, bump.ErrPermanent):
		errs.reset(msg.TxRef)
		logger.Errorf("dropping funding message: %v", err)
		return nil
	}

	count := errs.increment(msg.TxRef)
	if count >= maxErrorCount {
		errs.reset(msg.TxRef)
		logger.Errorf("funding failed %d times, dropping: %v", count, err)
		return nil
	}
	logger.Warnf("funding failed (%d/%d), requeueing: %v", count, maxErrorCount, err)
	return err
}
