// Package executor performs one trade for one worker wallet: price, credit
// check, quote, submit, confirm, debit, log.
package executor

import (
	"context"
	"errors"
	"time"

	"bumpcontrol/internal/ledger"
	"bumpcontrol/internal/models"
	"bumpcontrol/pkg/metrics"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Timeouts bound each external call of a trade
type Timeouts struct {
	Price   time.Duration
	Quote   time.Duration
	Submit  time.Duration
	Confirm time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Price:   10 * time.Second,
		Quote:   10 * time.Second,
		Submit:  20 * time.Second,
		Confirm: 60 * time.Second,
	}
}

type Config struct {
	// FundingAsset is what the worker wallets spend, e.g. the wrapped SOL mint.
	FundingAsset    string
	FundingDecimals int32
	Timeouts        Timeouts
}

const debitRounds = 5

type Executor struct {
	cfg          Config
	debitBackoff time.Duration
	ledger       Ledger
	custody      Custody
	aggregator   Aggregator
	prices       PriceFeed
	activity     ActivitySink
}

func New(cfg Config, l Ledger, custody Custody, aggregator Aggregator, prices PriceFeed, activity ActivitySink) *Executor {
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}
	return &Executor{
		cfg:          cfg,
		debitBackoff: 200 * time.Millisecond,
		ledger:       l,
		custody:      custody,
		aggregator:   aggregator,
		prices:       prices,
		activity:     activity,
	}
}

// TradeAmount converts a USD notional into funding units at the current
// price, rounded down to the funding asset precision.
func (e *Executor) TradeAmount(ctx context.Context, notional decimal.Decimal) (decimal.Decimal, error) {
	return tradeAmount(ctx, e.prices, e.cfg.FundingAsset, e.cfg.FundingDecimals, e.cfg.Timeouts.Price, notional)
}

func tradeAmount(ctx context.Context, prices PriceFeed, asset string, decimals int32, timeout time.Duration, notional decimal.Decimal) (decimal.Decimal, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	price, err := prices.Price(pctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.New("price feed returned a non-positive price")
	}
	return notional.Div(price).RoundDown(decimals), nil
}

// Execute runs one trade for wallet walletIndex of the session owner.
// The ledger is only touched after a confirmed success.
func (e *Executor) Execute(ctx context.Context, owner string, walletIndex int, s *models.Session) Outcome {
	logger := log.WithFields(log.Fields{"owner": owner, "session": s.ID, "wallet": walletIndex})
	outcome := e.execute(ctx, logger, owner, walletIndex, s)
	metrics.Trades.WithLabelValues(outcome.Kind.String()).Inc()
	return outcome
}

func (e *Executor) execute(ctx context.Context, logger *log.Entry, owner string, walletIndex int, s *models.Session) Outcome {
	scope := ledger.WorkerScope(walletIndex)

	amount, err := e.TradeAmount(ctx, s.NotionalUSD)
	if err != nil {
		logger.Warnf("> price unavailable: %v", err)
		return e.fail(ctx, owner, walletIndex, s, "", "price unavailable: %v", err)
	}
	if !amount.IsPositive() {
		return e.fail(ctx, owner, walletIndex, s, "", "trade amount rounds to zero")
	}

	available, err := e.ledger.Balance(ctx, owner, scope)
	if err != nil {
		return e.fail(ctx, owner, walletIndex, s, "", "read credit: %v", err)
	}
	if available.LessThan(amount) {
		logger.Infof("> wallet credit %s below trade amount %s, skipping", available, amount)
		e.record(ctx, &models.ActivityLog{
			OwnerID:     owner,
			SessionID:   s.ID,
			WalletIndex: walletIndex,
			Amount:      amount,
			Status:      models.ActivitySkipped,
			Message:     "insufficient credit",
			Meta:        models.JSONMap{"available": available.String()},
		})
		return Insufficient(amount, available)
	}

	address, err := e.custody.GetOrCreateWallet(ctx, owner, walletIndex)
	if err != nil {
		return e.fail(ctx, owner, walletIndex, s, "", "resolve wallet: %v", err)
	}

	qctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Quote)
	quote, err := e.aggregator.Quote(qctx, QuoteRequest{
		Sell:   e.cfg.FundingAsset,
		Buy:    s.TargetAsset,
		Amount: amount,
		Taker:  address,
	})
	cancel()
	if err != nil {
		return e.fail(ctx, owner, walletIndex, s, "", "quote: %v", err)
	}
	if len(quote.Swap) == 0 {
		return e.fail(ctx, owner, walletIndex, s, "", "quote returned no swap call")
	}

	batch := make([]Call, 0, len(quote.Setup)+len(quote.Swap))
	batch = append(batch, quote.Setup...)
	batch = append(batch, quote.Swap...)

	sctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Submit)
	txRef, err := e.custody.Submit(sctx, address, batch)
	cancel()
	if err != nil {
		return e.fail(ctx, owner, walletIndex, s, "", "submit: %v", err)
	}
	logger.WithField("tx", txRef).Infof("> submitted %d calls (%d setup), amount %s", len(batch), len(quote.Setup), amount)

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Confirm)
	conf, err := e.custody.AwaitConfirmation(cctx, txRef)
	cancel()
	if errors.Is(err, context.DeadlineExceeded) {
		logger.WithField("tx", txRef).Warn("> confirmation timed out, not debiting")
		return e.fail(ctx, owner, walletIndex, s, txRef, "confirmation timeout")
	}
	if err != nil {
		return e.fail(ctx, owner, walletIndex, s, txRef, "confirm: %v", err)
	}
	if conf.Status != Confirmed {
		return e.fail(ctx, owner, walletIndex, s, txRef, "transaction reverted: %s", conf.Err)
	}

	spent := conf.Spent
	if !spent.IsPositive() {
		spent = quote.InAmount
		if !spent.IsPositive() {
			spent = amount
		}
	}

	res, err := e.debitSpent(ctx, logger.WithField("tx", txRef), owner, scope, spent)
	if err != nil {
		// funds are gone on chain; the trade stands and the missing debit
		// is left for reconciliation
		logger.WithField("tx", txRef).Errorf("> confirmed trade could not be debited: %v", err)
		e.record(ctx, &models.ActivityLog{
			OwnerID:     owner,
			SessionID:   s.ID,
			WalletIndex: walletIndex,
			Amount:      spent,
			Status:      models.ActivitySuccess,
			TxRef:       txRef,
			Message:     "trade confirmed, debit not applied",
			Degraded:    true,
			Meta: models.JSONMap{
				"unapplied_debit": spent.String(),
				"debit_error":     err.Error(),
			},
		})
		return Succeeded(txRef, spent)
	}
	entry := &models.ActivityLog{
		OwnerID:     owner,
		SessionID:   s.ID,
		WalletIndex: walletIndex,
		Amount:      spent,
		Status:      models.ActivitySuccess,
		TxRef:       txRef,
		Message:     "trade confirmed",
		Meta: models.JSONMap{
			"estimated_out": quote.EstimatedOut.String(),
			"remaining":     res.Remaining.String(),
		},
	}
	if !res.Applied {
		logger.WithField("tx", txRef).Warnf("> spent %s exceeds wallet credit, shortfall %s", spent, res.Shortfall)
		entry.Meta["shortfall"] = res.Shortfall.String()
	}
	e.record(ctx, entry)
	logger.WithField("tx", txRef).Infof("> trade confirmed, spent %s, remaining %s", spent, res.Remaining)
	return Succeeded(txRef, spent)
}

// debitSpent applies the debit of a confirmed trade. The chain already
// moved the funds, so it ignores caller cancellation and retries lost races
// for debitRounds rounds.
func (e *Executor) debitSpent(ctx context.Context, logger *log.Entry, owner, scope string, spent decimal.Decimal) (ledger.DebitResult, error) {
	dctx := context.WithoutCancel(ctx)
	var err error
	for round := 1; round <= debitRounds; round++ {
		var res ledger.DebitResult
		res, err = e.ledger.Debit(dctx, owner, scope, spent)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ledger.ErrLedgerConflict) {
			return res, err
		}
		logger.Warnf("> debit round %d/%d lost: %v", round, debitRounds, err)
		time.Sleep(time.Duration(round) * e.debitBackoff)
	}
	return ledger.DebitResult{}, err
}

func (e *Executor) fail(ctx context.Context, owner string, walletIndex int, s *models.Session, txRef, format string, args ...interface{}) Outcome {
	outcome := Failed(format, args...)
	e.record(ctx, &models.ActivityLog{
		OwnerID:     owner,
		SessionID:   s.ID,
		WalletIndex: walletIndex,
		Status:      models.ActivityFailed,
		TxRef:       txRef,
		Message:     outcome.Reason,
	})
	return outcome
}

// record never blocks the trade path on a sink failure
func (e *Executor) record(ctx context.Context, entry *models.ActivityLog) {
	if e.activity == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.activity.Append(actx, entry); err != nil {
		log.WithField("owner", entry.OwnerID).Warnf("> activity append failed: %v", err)
	}
}
