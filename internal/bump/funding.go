package bump

import (
	"context"
	"errors"
	"fmt"

	"bumpcontrol/internal/custody"
	"bumpcontrol/internal/ledger"
	"bumpcontrol/internal/session"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// FundingMessage is published once a user's deposit has landed. The worker
// credits it, distributes it across the worker wallets and optionally
// starts a session.
type FundingMessage struct {
	Owner          string            `json:"owner"`
	TxRef          string            `json:"tx_ref"`
	ExpectedAmount decimal.Decimal   `json:"expected_amount"`
	Amounts        []decimal.Decimal `json:"amounts,omitempty"`
	Start          *StartSpec        `json:"start,omitempty"`
}

type StartSpec struct {
	TargetAsset     string          `json:"target_asset"`
	NotionalUSD     decimal.Decimal `json:"notional_usd"`
	IntervalSeconds int             `json:"interval_seconds"`
}

// ErrPermanent marks funding messages that will never succeed on retry
var ErrPermanent = errors.New("funding message cannot be processed")

var permanentErrors = []error{
	ErrMissingOwner,
	ErrMissingTarget,
	ErrInvalidNotional,
	ErrInvalidInterval,
	ErrFundingShape,
	ErrInsufficientTotalCredit,
	ledger.ErrInvalidAmount,
	ledger.ErrMissingReference,
	ledger.ErrInsufficientMain,
	ledger.ErrReferenceConflict,
	custody.ErrDepositRejected,
}

func classify(err error) error {
	for _, p := range permanentErrors {
		if errors.Is(err, p) {
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		}
	}
	return err
}

// HandleFunding applies a funding message. Every step is idempotent so a
// redelivered message converges to the same state.
func (s *Service) HandleFunding(ctx context.Context, msg FundingMessage) error {
	logger := log.WithFields(log.Fields{"owner": msg.Owner, "tx": msg.TxRef})

	if _, err := s.EnsureWallets(ctx, msg.Owner); err != nil {
		return classify(err)
	}

	dep, err := s.Deposit(ctx, msg.Owner, msg.TxRef, msg.ExpectedAmount)
	if err != nil {
		return classify(err)
	}

	amounts := msg.Amounts
	if len(amounts) == 0 {
		amounts = splitEvenly(dep.Amount, s.cfg.WalletCount, s.cfg.FundingDecimals)
	}
	if _, err := s.Fund(ctx, msg.Owner, msg.TxRef+":fund", amounts); err != nil {
		return classify(err)
	}

	if msg.Start == nil {
		return nil
	}
	_, err = s.StartSession(ctx, StartRequest{
		Owner:           msg.Owner,
		TargetAsset:     msg.Start.TargetAsset,
		NotionalUSD:     msg.Start.NotionalUSD,
		IntervalSeconds: msg.Start.IntervalSeconds,
	})
	if errors.Is(err, session.ErrSessionRunning) {
		logger.Info("> session already running, funding only")
		return nil
	}
	return classify(err)
}

// splitEvenly divides amount into n parts at funding precision; the last part
// takes the remainder so the parts sum to amount exactly.
func splitEvenly(amount decimal.Decimal, n int, places int32) []decimal.Decimal {
	parts := make([]decimal.Decimal, n)
	share := amount.Div(decimal.NewFromInt(int64(n))).RoundDown(places)
	rest := amount
	for i := 0; i < n-1; i++ {
		parts[i] = share
		rest = rest.Sub(share)
	}
	parts[n-1] = rest
	return parts
}
