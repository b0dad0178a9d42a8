package executor

import (
	"context"

	"bumpcontrol/internal/ledger"
	"bumpcontrol/internal/models"

	"github.com/shopspring/decimal"
)

// AccountMeta is one account reference of an on-chain call
type AccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Call is one instruction of a batch submitted atomically
type Call struct {
	Program  string        `json:"program"`
	Accounts []AccountMeta `json:"accounts"`
	Data     []byte        `json:"data"`
}

type QuoteRequest struct {
	Sell   string
	Buy    string
	Amount decimal.Decimal // funding asset units
	Taker  string
}

// Quote is an executable route for one swap. Setup holds the approval and
// account creation calls that have to land before Swap in the same batch.
type Quote struct {
	Setup        []Call
	Swap         []Call
	Target       string
	InAmount     decimal.Decimal
	EstimatedOut decimal.Decimal
}

type ConfirmationStatus string

const (
	Confirmed ConfirmationStatus = "confirmed"
	Reverted  ConfirmationStatus = "reverted"
)

// Confirmation is the settled result of a submitted batch. Spent is the
// funding asset actually consumed, zero when the backend cannot tell.
type Confirmation struct {
	Status ConfirmationStatus
	Spent  decimal.Decimal
	Err    string
}

// Custody owns worker keys and talks to the chain
type Custody interface {
	GetOrCreateWallet(ctx context.Context, owner string, index int) (string, error)
	Submit(ctx context.Context, address string, calls []Call) (string, error)
	AwaitConfirmation(ctx context.Context, txRef string) (Confirmation, error)
}

type Aggregator interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// PriceFeed returns the USD value of one unit of asset
type PriceFeed interface {
	Price(ctx context.Context, asset string) (decimal.Decimal, error)
}

type ActivitySink interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
}

// Ledger is the part of the credit ledger a trade touches
type Ledger interface {
	Balance(ctx context.Context, owner, scope string) (decimal.Decimal, error)
	Debit(ctx context.Context, owner, scope string, amount decimal.Decimal) (ledger.DebitResult, error)
}
