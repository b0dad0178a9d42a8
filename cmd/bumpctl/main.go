// Command bumpctl is the operator toolbox: schema migrations, queue
// maintenance, RPC checks and manual funding.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bumpcontrol/internal/bump"
	"bumpcontrol/internal/wallet"
	"bumpcontrol/pkg/config"
	"bumpcontrol/pkg/solana"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const usage = `usage: bumpctl <command> [flags]

commands:
  migrate up|down        apply or roll back one schema migration
  purge <queue>          drop every message of a RabbitMQ queue
  rpc-check [url...]     getHealth against the configured or given RPCs
  fund [flags]           publish a funding message for the worker
  check-wallet [flags]   verify a worker wallet key opens to its address
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	settings, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	settings.ConfigureLogger(false)
	ctx := context.Background()

	args := os.Args[2:]
	switch os.Args[1] {
	case "migrate":
		err = runMigrate(settings, args)
	case "purge":
		err = runPurge(ctx, settings, args)
	case "rpc-check":
		err = runRPCCheck(ctx, settings, args)
	case "fund":
		err = runFund(ctx, settings, args)
	case "check-wallet":
		err = runCheckWallet(ctx, settings, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runMigrate(s *config.Settings, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("migrate needs up or down")
	}
	db, err := config.OpenDatabase(s.Database)
	if err != nil {
		return err
	}
	switch args[0] {
	case "up":
		return config.ExecuteMigrations(db, s.Database.MigrationsDir)
	case "down":
		return config.RollbackMigration(db, s.Database.MigrationsDir)
	}
	return fmt.Errorf("unknown migrate direction %q", args[0])
}

func runPurge(ctx context.Context, s *config.Settings, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("purge needs a queue name")
	}
	conn, err := config.DialRabbitMQ(ctx, s.RabbitMQ)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = config.PurgeQueue(conn, args[0])
	return err
}

func runRPCCheck(ctx context.Context, s *config.Settings, args []string) error {
	urls := args
	if len(urls) == 0 && s.Custody.SolanaRPC != "" {
		urls = []string{s.Custody.SolanaRPC}
	}
	if len(urls) == 0 {
		return fmt.Errorf("no RPC endpoints given and DEFAULT_SOLANA_RPC is empty")
	}
	failed := 0
	for _, r := range solana.CheckRPCList(ctx, urls, 5*time.Second) {
		if r.OK {
			log.Infof("%s ok (%s)", r.URL, r.Latency)
			continue
		}
		failed++
		log.Errorf("%s down: %s", r.URL, r.Error)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d endpoints unhealthy", failed, len(urls))
	}
	return nil
}

func runFund(ctx context.Context, s *config.Settings, args []string) error {
	fs := flag.NewFlagSet("fund", flag.ExitOnError)
	owner := fs.String("owner", "", "owner id")
	txRef := fs.String("tx", "", "deposit transaction signature")
	expected := fs.String("expected", "0", "expected deposit amount in funding units")
	target := fs.String("target", "", "target asset mint; starts a session when set")
	notional := fs.String("notional", "0", "USD notional per trade")
	interval := fs.Int("interval", 10, "seconds between trades")
	if err := fs.Parse(args); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(*expected)
	if err != nil {
		return fmt.Errorf("invalid -expected: %w", err)
	}
	msg := bump.FundingMessage{Owner: *owner, TxRef: *txRef, ExpectedAmount: amount}
	if *target != "" {
		n, err := decimal.NewFromString(*notional)
		if err != nil {
			return fmt.Errorf("invalid -notional: %w", err)
		}
		msg.Start = &bump.StartSpec{TargetAsset: *target, NotionalUSD: n, IntervalSeconds: *interval}
	}

	conn, err := config.DialRabbitMQ(ctx, s.RabbitMQ)
	if err != nil {
		return err
	}
	defer conn.Close()
	pub, err := config.NewPublisher(conn)
	if err != nil {
		return err
	}
	defer pub.Close()
	if err := pub.Publish(ctx, s.RabbitMQ.FundingQueue, msg); err != nil {
		return err
	}
	log.Infof("funding message for %s published to %s", msg.Owner, s.RabbitMQ.FundingQueue)
	return nil
}

func runCheckWallet(ctx context.Context, s *config.Settings, args []string) error {
	fs := flag.NewFlagSet("check-wallet", flag.ExitOnError)
	owner := fs.String("owner", "", "owner id")
	index := fs.Int("index", 0, "worker wallet index")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := config.OpenDatabase(s.Database)
	if err != nil {
		return err
	}
	w, err := wallet.NewGormStore(db).Get(ctx, *owner, *index)
	if err != nil {
		return err
	}
	keys := solana.NewKeyManager(s.Custody.EncryptPassword)
	raw, err := keys.DecryptPrivateKey(w.EncryptedKey)
	if err != nil {
		return err
	}
	address, err := keys.GetSolanaAddressFromPrivateKey(raw)
	if err != nil {
		return err
	}
	if address != w.Address {
		return fmt.Errorf("wallet %s/%d key opens to %s, stored address is %s", *owner, *index, address, w.Address)
	}
	log.Infof("wallet %s/%d ok: %s", *owner, *index, address)
	return nil
}
