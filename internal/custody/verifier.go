package custody

import (
	"context"
	"errors"
	"fmt"

	solanautil "bumpcontrol/pkg/solana"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// DepositVerifier reads a funding transfer from the chain and returns the
// amount to credit. With a positive expected amount the transfer must cover
// it and exactly expected is credited; otherwise the observed amount is.
type DepositVerifier struct {
	client  *rpc.Client
	address string
}

func NewDepositVerifier(client *rpc.Client, depositAddress string) *DepositVerifier {
	return &DepositVerifier{client: client, address: depositAddress}
}

func (v *DepositVerifier) VerifyDeposit(ctx context.Context, txRef string, expected decimal.Decimal) (decimal.Decimal, error) {
	txResult, err := solanautil.GetTransactionBySignature(ctx, v.client, txRef)
	switch {
	case errors.Is(err, solanautil.ErrInvalidSignature), errors.Is(err, solanautil.ErrTxNotFound):
		return decimal.Zero, fmt.Errorf("%w: %v", ErrDepositRejected, err)
	case err != nil:
		// only a node that could not answer leaves the deposit unverifiable
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnverifiable, err)
	}
	if txResult.Meta.Err != nil {
		return decimal.Zero, fmt.Errorf("%w: transaction failed on chain", ErrDepositRejected)
	}
	changes, err := solanautil.LamportChanges(txResult, v.address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrDepositRejected, err)
	}
	delta, ok := changes[v.address]
	if !ok || delta <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no inbound transfer to %s", ErrDepositRejected, v.address)
	}
	return settle(decimal.NewFromInt(delta).Shift(-lamportDecimals), expected)
}

// PaperVerifier trusts the caller's expected amount. Paper backend only.
type PaperVerifier struct{}

func (PaperVerifier) VerifyDeposit(ctx context.Context, txRef string, expected decimal.Decimal) (decimal.Decimal, error) {
	if !expected.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: paper deposits need an expected amount", ErrDepositRejected)
	}
	return expected, nil
}

func settle(observed, expected decimal.Decimal) (decimal.Decimal, error) {
	if !expected.IsPositive() {
		return observed, nil
	}
	if observed.LessThan(expected) {
		return decimal.Zero, fmt.Errorf("%w: received %s, expected %s", ErrDepositRejected, observed, expected)
	}
	return expected, nil
}
