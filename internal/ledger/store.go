package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bumpcontrol/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrEntryNotFound    = errors.New("credit entry not found")
	ErrInvalidAmount    = errors.New("amount must not be negative")
	ErrMissingReference = errors.New("transaction reference is required")
	ErrInsufficientMain = errors.New("main balance does not cover the distribution")
	ErrLedgerConflict   = errors.New("ledger update lost too many concurrent races")
	ErrInvalidScope     = errors.New("invalid credit scope")
	// ErrReferenceConflict means the reference was already consumed by a
	// different owner or a different kind of operation.
	ErrReferenceConflict = errors.New("transaction reference already used by another operation")
)

// MainScope is the owner's undistributed balance
const MainScope = "main"

const workerPrefix = "worker:"

// WorkerScope names the credit scope of worker wallet i
func WorkerScope(i int) string {
	return workerPrefix + strconv.Itoa(i)
}

// ParseWorkerScope returns the wallet index of a worker scope
func ParseWorkerScope(scope string) (int, error) {
	if !strings.HasPrefix(scope, workerPrefix) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	i, err := strconv.Atoi(strings.TrimPrefix(scope, workerPrefix))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	return i, nil
}

func validScope(scope string) bool {
	if scope == MainScope {
		return true
	}
	_, err := ParseWorkerScope(scope)
	return err == nil
}

// Store is the persistence contract behind the ledger. Balance changes go
// through SwapBalance, a compare-and-set on the row version.
type Store interface {
	Entry(ctx context.Context, owner, scope string) (*models.CreditEntry, error)
	Entries(ctx context.Context, owner string) ([]models.CreditEntry, error)
	// EnsureEntry returns the row, creating a zero balance one if missing.
	EnsureEntry(ctx context.Context, owner, scope string) (*models.CreditEntry, error)
	// SwapBalance writes balance only if the row still has the given version.
	SwapBalance(ctx context.Context, id uint, version int64, balance decimal.Decimal) (bool, error)
	// InsertReceipt returns false when the reference was already consumed.
	InsertReceipt(ctx context.Context, receipt *models.CreditReceipt) (bool, error)
	Receipt(ctx context.Context, txRef string) (*models.CreditReceipt, error)
	// Atomically runs fn against a transactional view of the store.
	Atomically(ctx context.Context, fn func(Store) error) error
}
