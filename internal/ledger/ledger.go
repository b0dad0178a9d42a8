// Package ledger keeps the credit bookkeeping of an owner's main balance
// and worker wallets. Every balance change is a compare-and-set on the row
// version, retried here on conflict.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"bumpcontrol/internal/models"
	"bumpcontrol/pkg/metrics"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	defaultAttempts = 8
	defaultBackoff  = 5 * time.Millisecond
)

// DebitResult reports what a debit did. When the balance was short the
// scope is zeroed, Applied is false and Shortfall holds the uncovered part.
type DebitResult struct {
	Applied   bool
	Debited   decimal.Decimal
	Remaining decimal.Decimal
	Shortfall decimal.Decimal
}

type Ledger struct {
	store    Store
	attempts int
	backoff  time.Duration
}

type Option func(*Ledger)

// WithRetry sets the compare-and-set attempts and the base backoff
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(l *Ledger) {
		if attempts > 0 {
			l.attempts = attempts
		}
		l.backoff = backoff
	}
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, attempts: defaultAttempts, backoff: defaultBackoff}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type creditOptions struct {
	kind         models.ReceiptKind
	verification models.Verification
	verified     bool
}

type CreditOption func(*creditOptions)

// AsDeposit marks the credit as an inbound deposit confirmed by v
func AsDeposit(v models.Verification) CreditOption {
	return func(o *creditOptions) {
		o.kind = models.ReceiptDeposit
		o.verification = v
		o.verified = v != models.VerificationFallback
	}
}

// Credit increases scope by amount. A reference that was already consumed
// makes the call a no-op and it returns false.
func (l *Ledger) Credit(ctx context.Context, owner, scope string, amount decimal.Decimal, ref string, opts ...CreditOption) (bool, error) {
	if amount.IsNegative() {
		return false, ErrInvalidAmount
	}
	if ref == "" {
		return false, ErrMissingReference
	}
	if !validScope(scope) {
		return false, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	o := creditOptions{kind: models.ReceiptCredit, verification: models.VerificationInternal, verified: true}
	for _, opt := range opts {
		opt(&o)
	}

	credited := false
	err := l.store.Atomically(ctx, func(st Store) error {
		inserted, err := claimReceipt(ctx, st, &models.CreditReceipt{
			TxRef:        ref,
			OwnerID:      owner,
			Kind:         o.kind,
			Amount:       amount,
			Verified:     o.verified,
			Verification: o.verification,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		_, _, err = l.adjust(ctx, st, owner, scope, func(balance decimal.Decimal) (decimal.Decimal, error) {
			return balance.Add(amount), nil
		})
		if err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if credited {
		metrics.Credits.WithLabelValues(string(o.kind), strconv.FormatBool(o.verified)).Inc()
		log.WithFields(log.Fields{"owner": owner, "scope": scope, "amount": amount.String(), "ref": ref}).Info("> credit applied")
	} else {
		log.WithFields(log.Fields{"owner": owner, "ref": ref}).Info("> duplicate reference, credit skipped")
	}
	return credited, nil
}

// Deposit credits the main scope with an inbound transfer confirmed by v
func (l *Ledger) Deposit(ctx context.Context, owner, ref string, amount decimal.Decimal, v models.Verification) (bool, error) {
	return l.Credit(ctx, owner, MainScope, amount, ref, AsDeposit(v))
}

// Debit decreases scope by amount without ever going below zero
func (l *Ledger) Debit(ctx context.Context, owner, scope string, amount decimal.Decimal) (DebitResult, error) {
	if amount.IsNegative() {
		return DebitResult{}, ErrInvalidAmount
	}
	if !validScope(scope) {
		return DebitResult{}, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	var res DebitResult
	before, after, err := l.adjust(ctx, l.store, owner, scope, func(balance decimal.Decimal) (decimal.Decimal, error) {
		if balance.LessThan(amount) {
			return decimal.Zero, nil
		}
		return balance.Sub(amount), nil
	})
	if err != nil {
		return DebitResult{}, err
	}
	res.Remaining = after
	res.Debited = before.Sub(after)
	if before.LessThan(amount) {
		res.Shortfall = amount.Sub(before)
	} else {
		res.Applied = true
		res.Shortfall = decimal.Zero
	}
	return res, nil
}

// Distribute moves amounts[i] from main to worker:i in one transaction.
// A reused reference returns the current entries without moving credit.
func (l *Ledger) Distribute(ctx context.Context, owner, ref string, amounts []decimal.Decimal) ([]models.CreditEntry, error) {
	if ref == "" {
		return nil, ErrMissingReference
	}
	total := decimal.Zero
	for _, a := range amounts {
		if a.IsNegative() {
			return nil, ErrInvalidAmount
		}
		total = total.Add(a)
	}

	err := l.store.Atomically(ctx, func(st Store) error {
		inserted, err := claimReceipt(ctx, st, &models.CreditReceipt{
			TxRef:        ref,
			OwnerID:      owner,
			Kind:         models.ReceiptDistribution,
			Amount:       total,
			Verified:     true,
			Verification: models.VerificationInternal,
		})
		if err != nil {
			return err
		}
		if !inserted {
			log.WithFields(log.Fields{"owner": owner, "ref": ref}).Info("> duplicate reference, distribution skipped")
			return nil
		}

		_, _, err = l.adjust(ctx, st, owner, MainScope, func(balance decimal.Decimal) (decimal.Decimal, error) {
			if balance.LessThan(total) {
				return balance, fmt.Errorf("%w: have %s, need %s", ErrInsufficientMain, balance, total)
			}
			return balance.Sub(total), nil
		})
		if err != nil {
			return err
		}
		for i, a := range amounts {
			_, _, err := l.adjust(ctx, st, owner, WorkerScope(i), func(balance decimal.Decimal) (decimal.Decimal, error) {
				return balance.Add(a), nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.store.Entries(ctx, owner)
}

// claimReceipt records r. It returns false when the same owner already
// used the reference for the same kind of operation, and
// ErrReferenceConflict when anyone else did.
func claimReceipt(ctx context.Context, st Store, r *models.CreditReceipt) (bool, error) {
	inserted, err := st.InsertReceipt(ctx, r)
	if err != nil {
		return false, fmt.Errorf("insert receipt: %w", err)
	}
	if inserted {
		return true, nil
	}
	prior, err := st.Receipt(ctx, r.TxRef)
	if err != nil {
		return false, fmt.Errorf("load receipt: %w", err)
	}
	if prior.OwnerID != r.OwnerID || prior.Kind != r.Kind {
		return false, fmt.Errorf("%w: %q is a %s of owner %s", ErrReferenceConflict, r.TxRef, prior.Kind, prior.OwnerID)
	}
	return false, nil
}

// Balance returns the credit of one scope, zero if it was never funded
func (l *Ledger) Balance(ctx context.Context, owner, scope string) (decimal.Decimal, error) {
	entry, err := l.store.Entry(ctx, owner, scope)
	if errors.Is(err, ErrEntryNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return entry.Balance, nil
}

// Receipt returns the receipt recorded for ref, nil if ref is unused
func (l *Ledger) Receipt(ctx context.Context, ref string) (*models.CreditReceipt, error) {
	r, err := l.store.Receipt(ctx, ref)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, nil
	}
	return r, err
}

func (l *Ledger) Entries(ctx context.Context, owner string) ([]models.CreditEntry, error) {
	return l.store.Entries(ctx, owner)
}

// TotalCredit is main plus every worker balance
func (l *Ledger) TotalCredit(ctx context.Context, owner string) (decimal.Decimal, error) {
	entries, err := l.store.Entries(ctx, owner)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Balance)
	}
	return total, nil
}

// adjust applies fn to the current balance with compare-and-set, retrying
// lost races. It returns the balance before and after the write.
func (l *Ledger) adjust(ctx context.Context, st Store, owner, scope string, fn func(decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, decimal.Decimal, error) {
	for attempt := 1; attempt <= l.attempts; attempt++ {
		entry, err := st.EnsureEntry(ctx, owner, scope)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("load %s/%s: %w", owner, scope, err)
		}
		next, err := fn(entry.Balance)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		if next.IsNegative() {
			return decimal.Zero, decimal.Zero, ErrInvalidAmount
		}
		ok, err := st.SwapBalance(ctx, entry.ID, entry.Version, next)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("update %s/%s: %w", owner, scope, err)
		}
		if ok {
			return entry.Balance, next, nil
		}

		metrics.LedgerConflicts.Inc()
		log.WithFields(log.Fields{"owner": owner, "scope": scope, "attempt": attempt}).Debug("> ledger version conflict, retrying")
		if err := l.wait(ctx, attempt); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
	}
	return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s/%s", ErrLedgerConflict, owner, scope)
}

func (l *Ledger) wait(ctx context.Context, attempt int) error {
	if l.backoff <= 0 {
		return ctx.Err()
	}
	d := l.backoff*time.Duration(attempt) + time.Duration(rand.Int63n(int64(l.backoff)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
