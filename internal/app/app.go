// Package app assembles the bump engine from settings. The api and worker
// binaries share it and differ only in how sessions are driven.
package app

import (
	"context"
	"fmt"

	"bumpcontrol/internal/activity"
	"bumpcontrol/internal/bump"
	"bumpcontrol/internal/custody"
	"bumpcontrol/internal/executor"
	"bumpcontrol/internal/ledger"
	"bumpcontrol/internal/market"
	"bumpcontrol/internal/scheduler"
	"bumpcontrol/internal/session"
	"bumpcontrol/internal/wallet"
	"bumpcontrol/pkg/config"
	"bumpcontrol/pkg/solana"
	"bumpcontrol/pkg/utils"

	"github.com/gagliardetto/solana-go/rpc"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type App struct {
	Settings *config.Settings
	DB       *gorm.DB
	Rabbit   *amqp.Connection

	Ledger   *ledger.Ledger
	Sessions session.Store
	Wallets  wallet.Store
	Log      *activity.GormStore
	Feed     *activity.Fanout
	Executor *executor.Executor
	Iterator *scheduler.Iterator

	provisioner bump.Provisioner
	verifier    bump.DepositVerifier
	publisher   *config.Publisher
}

// Build opens the database and message bus and wires every component.
// extra sinks receive activity alongside the database and the bus.
func Build(ctx context.Context, s *config.Settings, extra ...activity.Sink) (*App, error) {
	db, err := config.OpenDatabase(s.Database)
	if err != nil {
		return nil, err
	}
	if err := config.ExecuteMigrations(db, s.Database.MigrationsDir); err != nil {
		return nil, err
	}

	a := &App{
		Settings: s,
		DB:       db,
		Ledger:   ledger.New(ledger.NewGormStore(db)),
		Sessions: session.NewGormStore(db),
		Wallets:  wallet.NewGormStore(db),
		Log:      activity.NewGormStore(db),
	}

	sinks := append([]activity.Sink{a.Log}, extra...)
	if s.RabbitMQ.Enabled() {
		a.Rabbit, err = config.DialRabbitMQ(ctx, s.RabbitMQ)
		if err != nil {
			return nil, err
		}
		a.publisher, err = config.NewPublisher(a.Rabbit)
		if err != nil {
			a.Close()
			return nil, err
		}
		sinks = append(sinks, activity.NewBusSink(a.publisher, s.RabbitMQ.ActivityQueue))
		log.Info("RabbitMQ initialized successfully")
	} else {
		log.Info("RabbitMQ not configured, activity stays local")
	}
	a.Feed = activity.NewFanout(sinks...)

	keys := solana.NewKeyManager(s.Custody.EncryptPassword)
	var custodian executor.Custody
	switch s.Custody.Backend {
	case config.CustodySolana:
		client := rpc.New(s.Custody.SolanaRPC)
		sol := custody.NewSolana(client, a.Wallets, keys)
		custodian, a.provisioner = sol, sol
		a.verifier = custody.NewDepositVerifier(client, s.Custody.DepositAddress)
	case config.CustodyPaper:
		paper := custody.NewPaper(a.Wallets, keys)
		custodian, a.provisioner = paper, paper
		a.verifier = custody.PaperVerifier{}
		log.Warn("paper custody backend: trades are simulated")
	default:
		a.Close()
		return nil, fmt.Errorf("unknown custody backend %q", s.Custody.Backend)
	}

	jup := market.NewJupiter(
		utils.NewJupiterClient(s.Trade.JupiterBaseURL, s.Trade.JupiterRPS, s.Trade.SlippageBps),
		s.Trade.FundingDecimals,
		map[string]int32{s.Trade.FundingMint: s.Trade.FundingDecimals},
	)
	a.Executor = executor.New(executor.Config{
		FundingAsset:    s.Trade.FundingMint,
		FundingDecimals: s.Trade.FundingDecimals,
		Timeouts: executor.Timeouts{
			Price:   s.Trade.PriceTimeout,
			Quote:   s.Trade.QuoteTimeout,
			Submit:  s.Trade.SubmitTimeout,
			Confirm: s.Trade.ConfirmTimeout,
		},
	}, a.Ledger, custodian, jup, jup, a.Feed)
	a.Iterator = scheduler.NewIterator(a.Sessions, a.Executor, a.Feed)

	return a, nil
}

// Service returns the bump service driven by driver. A nil driver leaves
// started sessions to the background worker.
func (a *App) Service(driver bump.Driver) *bump.Service {
	return bump.NewService(bump.Config{
		WalletCount:            a.Settings.Trade.WalletCount,
		FundingDecimals:        a.Settings.Trade.FundingDecimals,
		AllowUnverifiedFunding: a.Settings.Custody.AllowUnverifiedFunding,
	}, bump.Deps{
		Ledger:      a.Ledger,
		Sessions:    a.Sessions,
		Wallets:     a.Wallets,
		Provisioner: a.provisioner,
		Verifier:    a.verifier,
		Pricer:      a.Executor,
		Feed:        a.Feed,
		Log:         a.Log,
		Driver:      driver,
	})
}

func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.Rabbit != nil {
		a.Rabbit.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
