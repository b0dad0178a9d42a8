package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bumpcontrol/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func evenSplit(n int, each string) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = d(each)
	}
	return out
}

func TestLedgerScenario(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())

	credited, err := l.Credit(ctx, "alice", MainScope, d("100"), "deposit-1")
	require.NoError(t, err)
	assert.True(t, credited)

	_, err = l.Distribute(ctx, "alice", "dist-1", evenSplit(5, "20"))
	require.NoError(t, err)

	res, err := l.Debit(ctx, "alice", WorkerScope(0), d("7"))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.Remaining.Equal(d("13")))

	main, err := l.Balance(ctx, "alice", MainScope)
	require.NoError(t, err)
	assert.True(t, main.IsZero())

	w0, err := l.Balance(ctx, "alice", WorkerScope(0))
	require.NoError(t, err)
	assert.True(t, w0.Equal(d("13")), "worker:0 = %s", w0)

	for i := 1; i < 5; i++ {
		b, err := l.Balance(ctx, "alice", WorkerScope(i))
		require.NoError(t, err)
		assert.True(t, b.Equal(d("20")), "worker:%d = %s", i, b)
	}

	total, err := l.TotalCredit(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, total.Equal(d("93")), "total = %s", total)
}

func TestLedgerCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate reference credits once", func(t *testing.T) {
		l := New(NewMemoryStore())
		ok, err := l.Credit(ctx, "bob", MainScope, d("5"), "tx-1")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = l.Credit(ctx, "bob", MainScope, d("5"), "tx-1")
		require.NoError(t, err)
		assert.False(t, ok)

		total, err := l.TotalCredit(ctx, "bob")
		require.NoError(t, err)
		assert.True(t, total.Equal(d("5")))
	})

	t.Run("rejects negative amount and empty reference", func(t *testing.T) {
		l := New(NewMemoryStore())
		_, err := l.Credit(ctx, "bob", MainScope, d("-1"), "tx-2")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = l.Credit(ctx, "bob", MainScope, d("1"), "")
		assert.ErrorIs(t, err, ErrMissingReference)
		_, err = l.Credit(ctx, "bob", "savings", d("1"), "tx-3")
		assert.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("fallback deposit is recorded unverified", func(t *testing.T) {
		store := NewMemoryStore()
		l := New(store)
		ok, err := l.Deposit(ctx, "bob", "sig-1", d("2"), models.VerificationFallback)
		require.NoError(t, err)
		assert.True(t, ok)

		r, err := store.Receipt(ctx, "sig-1")
		require.NoError(t, err)
		assert.False(t, r.Verified)
		assert.Equal(t, models.ReceiptDeposit, r.Kind)
		assert.Equal(t, models.VerificationFallback, r.Verification)
	})
}

func TestLedgerDebit(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())
	_, err := l.Credit(ctx, "carol", WorkerScope(2), d("3"), "seed")
	require.NoError(t, err)

	res, err := l.Debit(ctx, "carol", WorkerScope(2), d("5"))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.True(t, res.Remaining.IsZero())
	assert.True(t, res.Shortfall.Equal(d("2")))
	assert.True(t, res.Debited.Equal(d("3")))

	res, err = l.Debit(ctx, "carol", WorkerScope(2), d("1"))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.True(t, res.Remaining.IsZero())

	_, err = l.Debit(ctx, "carol", WorkerScope(2), d("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerDistribute(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient main rolls back everything", func(t *testing.T) {
		l := New(NewMemoryStore())
		_, err := l.Credit(ctx, "dave", MainScope, d("50"), "dep")
		require.NoError(t, err)

		_, err = l.Distribute(ctx, "dave", "dist", evenSplit(5, "20"))
		assert.ErrorIs(t, err, ErrInsufficientMain)

		total, err := l.TotalCredit(ctx, "dave")
		require.NoError(t, err)
		assert.True(t, total.Equal(d("50")))
		w0, err := l.Balance(ctx, "dave", WorkerScope(0))
		require.NoError(t, err)
		assert.True(t, w0.IsZero())

		// the reference was not consumed by the failed attempt
		_, err = l.Credit(ctx, "dave", MainScope, d("50"), "dep-2")
		require.NoError(t, err)
		_, err = l.Distribute(ctx, "dave", "dist", evenSplit(5, "20"))
		require.NoError(t, err)
	})

	t.Run("same reference distributes once", func(t *testing.T) {
		l := New(NewMemoryStore())
		_, err := l.Credit(ctx, "erin", MainScope, d("100"), "dep")
		require.NoError(t, err)

		_, err = l.Distribute(ctx, "erin", "dist", evenSplit(5, "10"))
		require.NoError(t, err)
		entries, err := l.Distribute(ctx, "erin", "dist", evenSplit(5, "10"))
		require.NoError(t, err)
		assert.Len(t, entries, 6)

		main, err := l.Balance(ctx, "erin", MainScope)
		require.NoError(t, err)
		assert.True(t, main.Equal(d("50")), "main = %s", main)
	})
}

func TestLedgerReferenceConflicts(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())
	_, err := l.Credit(ctx, "alice", MainScope, d("100"), "tx-1")
	require.NoError(t, err)

	t.Run("another owner cannot reuse a reference", func(t *testing.T) {
		ok, err := l.Credit(ctx, "bob", MainScope, d("100"), "tx-1")
		assert.ErrorIs(t, err, ErrReferenceConflict)
		assert.False(t, ok)
		total, err := l.TotalCredit(ctx, "bob")
		require.NoError(t, err)
		assert.True(t, total.IsZero())
	})

	t.Run("a deposit reference cannot name a distribution", func(t *testing.T) {
		_, err := l.Distribute(ctx, "alice", "tx-1", evenSplit(5, "20"))
		assert.ErrorIs(t, err, ErrReferenceConflict)

		main, err := l.Balance(ctx, "alice", MainScope)
		require.NoError(t, err)
		assert.True(t, main.Equal(d("100")), "main = %s", main)
	})

	t.Run("a deposit cannot replay a plain credit", func(t *testing.T) {
		_, err := l.Deposit(ctx, "alice", "tx-1", d("100"), models.VerificationOnchain)
		assert.ErrorIs(t, err, ErrReferenceConflict)
	})

	t.Run("same owner and kind stays an idempotent no-op", func(t *testing.T) {
		ok, err := l.Credit(ctx, "alice", MainScope, d("100"), "tx-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLedgerConservation(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore())
	owner := "frank"

	funded := decimal.Zero
	spent := decimal.Zero
	for i, amt := range []string{"10", "4.5", "0.25"} {
		_, err := l.Credit(ctx, owner, MainScope, d(amt), "dep-"+amt)
		require.NoError(t, err)
		funded = funded.Add(d(amt))
		_, err = l.Distribute(ctx, owner, "dist-"+amt, []decimal.Decimal{d(amt), decimal.Zero})
		require.NoError(t, err)

		res, err := l.Debit(ctx, owner, WorkerScope(0), d("0.125"))
		require.NoError(t, err)
		require.True(t, res.Applied, "round %d", i)
		spent = spent.Add(res.Debited)
	}

	total, err := l.TotalCredit(ctx, owner)
	require.NoError(t, err)
	assert.True(t, total.Equal(funded.Sub(spent)), "total %s, want %s", total, funded.Sub(spent))
}

func TestLedgerConcurrentDebitsNeverGoNegative(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), WithRetry(10000, 0))
	_, err := l.Credit(ctx, "gina", WorkerScope(0), d("10"), "seed")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := decimal.Zero
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Debit(ctx, "gina", WorkerScope(0), d("0.5"))
			if !assert.NoError(t, err) {
				return
			}
			assert.False(t, res.Remaining.IsNegative())
			mu.Lock()
			applied = applied.Add(res.Debited)
			mu.Unlock()
		}()
	}
	// a funding race on the same owner
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := l.Credit(ctx, "gina", WorkerScope(0), d("5"), "topup")
		assert.NoError(t, err)
	}()
	wg.Wait()

	bal, err := l.Balance(ctx, "gina", WorkerScope(0))
	require.NoError(t, err)
	assert.False(t, bal.IsNegative())
	assert.True(t, d("15").Sub(applied).Equal(bal), "balance %s after debiting %s", bal, applied)
}

// flakyStore loses the first n compare-and-set races
type flakyStore struct {
	Store
	mu    sync.Mutex
	fails int
}

func (f *flakyStore) SwapBalance(ctx context.Context, id uint, version int64, balance decimal.Decimal) (bool, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return false, nil
	}
	f.mu.Unlock()
	return f.Store.SwapBalance(ctx, id, version, balance)
}

func TestLedgerRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	_, err := New(base).Credit(ctx, "hank", WorkerScope(1), d("4"), "seed")
	require.NoError(t, err)

	t.Run("recovers within the attempt budget", func(t *testing.T) {
		l := New(&flakyStore{Store: base, fails: 3}, WithRetry(5, 0))
		res, err := l.Debit(ctx, "hank", WorkerScope(1), d("1"))
		require.NoError(t, err)
		assert.True(t, res.Applied)
	})

	t.Run("surfaces exhaustion as an error", func(t *testing.T) {
		l := New(&flakyStore{Store: base, fails: 10}, WithRetry(3, 0))
		_, err := l.Debit(ctx, "hank", WorkerScope(1), d("1"))
		assert.True(t, errors.Is(err, ErrLedgerConflict))

		bal, err := l.Balance(ctx, "hank", WorkerScope(1))
		require.NoError(t, err)
		assert.True(t, bal.Equal(d("3")))
	})
}

func TestParseWorkerScope(t *testing.T) {
	i, err := ParseWorkerScope(WorkerScope(3))
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	_, err = ParseWorkerScope(MainScope)
	assert.ErrorIs(t, err, ErrInvalidScope)
	_, err = ParseWorkerScope("worker:-1")
	assert.ErrorIs(t, err, ErrInvalidScope)
}
