package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bumpcontrol/internal/ledger"
	"bumpcontrol/internal/models"

	"github.com/shopspring/decimal"
)

type fakePrices struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakePrices) Price(context.Context, string) (decimal.Decimal, error) {
	f.calls++
	return f.price, f.err
}

type fakeAggregator struct {
	setup []Call
	err   error
	reqs  []QuoteRequest
}

func (f *fakeAggregator) Quote(_ context.Context, req QuoteRequest) (*Quote, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &Quote{
		Setup:        f.setup,
		Swap:         []Call{{Program: "swap-program", Data: []byte("swap")}},
		Target:       "swap-program",
		InAmount:     req.Amount,
		EstimatedOut: decimal.NewFromInt(1000),
	}, nil
}

type fakeCustody struct {
	mu        sync.Mutex
	submitErr error
	conf      Confirmation
	confErr   error
	block     bool
	batches   [][]Call
	addresses map[int]string
	submitted int
	confirmed int
}

func (f *fakeCustody) GetOrCreateWallet(_ context.Context, owner string, index int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addresses == nil {
		f.addresses = make(map[int]string)
	}
	addr, ok := f.addresses[index]
	if !ok {
		addr = fmt.Sprintf("%s-wallet-%d", owner, index)
		f.addresses[index] = addr
	}
	return addr, nil
}

func (f *fakeCustody) Submit(_ context.Context, _ string, calls []Call) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.batches = append(f.batches, calls)
	f.submitted++
	return fmt.Sprintf("sig-%d", f.submitted), nil
}

func (f *fakeCustody) AwaitConfirmation(ctx context.Context, _ string) (Confirmation, error) {
	if f.block {
		<-ctx.Done()
		return Confirmation{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed++
	return f.conf, f.confErr
}

type memorySink struct {
	mu      sync.Mutex
	entries []models.ActivityLog
	err     error
}

func (m *memorySink) Append(_ context.Context, e *models.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return m.err
}

func (m *memorySink) statuses() []models.ActivityStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ActivityStatus
	for _, e := range m.entries {
		out = append(out, e.Status)
	}
	return out
}

var errBoom = errors.New("boom")

// flakyLedger fails the first debitFailures debits, then delegates
type flakyLedger struct {
	Ledger
	mu            sync.Mutex
	debitFailures int
	debits        int
}

func (f *flakyLedger) Debit(ctx context.Context, owner, scope string, amount decimal.Decimal) (ledger.DebitResult, error) {
	f.mu.Lock()
	f.debits++
	fail := f.debits <= f.debitFailures
	f.mu.Unlock()
	if fail {
		return ledger.DebitResult{}, ledger.ErrLedgerConflict
	}
	return f.Ledger.Debit(ctx, owner, scope, amount)
}
