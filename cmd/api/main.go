package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bumpcontrol/internal/activity"
	"bumpcontrol/internal/app"
	"bumpcontrol/internal/bump"
	"bumpcontrol/internal/models"
	"bumpcontrol/internal/routes"
	"bumpcontrol/internal/scheduler"
	"bumpcontrol/pkg/config"

	log "github.com/sirupsen/logrus"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	settings.ConfigureLogger(false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := activity.NewHub()

	// With a bus, the hub is fed from the activity queue so trades driven
	// by the worker reach websocket clients too.
	var extra []activity.Sink
	if !settings.RabbitMQ.Enabled() {
		extra = append(extra, hub)
	}

	a, err := app.Build(ctx, settings, extra...)
	if err != nil {
		log.Fatal("Failed to initialize: ", err)
	}
	defer a.Close()

	if a.Rabbit != nil {
		go relayActivity(ctx, a, hub)
	}

	var driver bump.Driver
	var inline *scheduler.InlineRunner
	if settings.Scheduler.Mode == config.SchedulerInline {
		inline = scheduler.NewInlineRunner(ctx, a.Iterator, time.Second)
		driver = inline
		log.Info("inline scheduler: sessions run inside the api process")
	}

	r := routes.SetupRouter(routes.Deps{
		Service:        a.Service(driver),
		Hub:            hub,
		AllowedOrigins: settings.AllowedOrigins,
		RPCEndpoints:   rpcEndpoints(settings),
	})

	srv := &http.Server{Addr: ":" + settings.Port, Handler: r}
	go func() {
		log.Infof("api listening on :%s", settings.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
	if inline != nil {
		inline.Wait()
	}
}

func rpcEndpoints(s *config.Settings) []string {
	if s.Custody.SolanaRPC == "" {
		return nil
	}
	return []string{s.Custody.SolanaRPC}
}

func relayActivity(ctx context.Context, a *app.App, hub *activity.Hub) {
	consumer, err := config.NewConsumer(a.Rabbit, a.Settings.RabbitMQ.ActivityQueue)
	if err != nil {
		log.Errorf("activity relay disabled: %v", err)
		return
	}
	defer consumer.Close()

	err = consumer.Consume(ctx, func(ctx context.Context, body []byte) error {
		var entry models.ActivityLog
		if err := json.Unmarshal(body, &entry); err != nil {
			log.Warnf("dropping malformed activity message: %v", err)
			return nil
		}
		return hub.Append(ctx, &entry)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("activity relay stopped: %v", err)
	}
}
