package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"bumpcontrol/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps the ledger in process memory. It backs single-process
// dry runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   uint
	entries  map[uint]*models.CreditEntry
	byScope  map[string]uint
	receipts map[string]models.CreditReceipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[uint]*models.CreditEntry),
		byScope:  make(map[string]uint),
		receipts: make(map[string]models.CreditReceipt),
	}
}

func scopeKey(owner, scope string) string {
	return owner + "\x00" + scope
}

func (s *MemoryStore) Entry(ctx context.Context, owner, scope string) (*models.CreditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryView{s}.Entry(ctx, owner, scope)
}

func (s *MemoryStore) Entries(ctx context.Context, owner string) ([]models.CreditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryView{s}.Entries(ctx, owner)
}

func (s *MemoryStore) EnsureEntry(ctx context.Context, owner, scope string) (*models.CreditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryView{s}.EnsureEntry(ctx, owner, scope)
}

func (s *MemoryStore) SwapBalance(ctx context.Context, id uint, version int64, balance decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryView{s}.SwapBalance(ctx, id, version, balance)
}

func (s *MemoryStore) InsertReceipt(ctx context.Context, receipt *models.CreditReceipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryView{s}.InsertReceipt(ctx, receipt)
}

func (s *MemoryStore) Receipt(ctx context.Context, txRef string) (*models.CreditReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memoryView{s}.Receipt(ctx, txRef)
}

// Atomically holds the store lock for the whole callback and restores the
// previous state when fn fails.
func (s *MemoryStore) Atomically(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(memoryView{s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	nextID   uint
	entries  map[uint]models.CreditEntry
	byScope  map[string]uint
	receipts map[string]models.CreditReceipt
}

func (s *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		nextID:   s.nextID,
		entries:  make(map[uint]models.CreditEntry, len(s.entries)),
		byScope:  make(map[string]uint, len(s.byScope)),
		receipts: make(map[string]models.CreditReceipt, len(s.receipts)),
	}
	for id, e := range s.entries {
		snap.entries[id] = *e
	}
	for k, v := range s.byScope {
		snap.byScope[k] = v
	}
	for k, v := range s.receipts {
		snap.receipts[k] = v
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.nextID = snap.nextID
	s.entries = make(map[uint]*models.CreditEntry, len(snap.entries))
	for id, e := range snap.entries {
		e := e
		s.entries[id] = &e
	}
	s.byScope = snap.byScope
	s.receipts = snap.receipts
}

// memoryView operates on a MemoryStore whose lock is already held.
type memoryView struct {
	s *MemoryStore
}

func (v memoryView) Entry(_ context.Context, owner, scope string) (*models.CreditEntry, error) {
	id, ok := v.s.byScope[scopeKey(owner, scope)]
	if !ok {
		return nil, ErrEntryNotFound
	}
	e := *v.s.entries[id]
	return &e, nil
}

func (v memoryView) Entries(_ context.Context, owner string) ([]models.CreditEntry, error) {
	var out []models.CreditEntry
	for _, e := range v.s.entries {
		if e.OwnerID == owner {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v memoryView) EnsureEntry(ctx context.Context, owner, scope string) (*models.CreditEntry, error) {
	if e, err := v.Entry(ctx, owner, scope); err == nil {
		return e, nil
	}
	v.s.nextID++
	now := time.Now()
	e := &models.CreditEntry{
		ID:        v.s.nextID,
		OwnerID:   owner,
		Scope:     scope,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	v.s.entries[e.ID] = e
	v.s.byScope[scopeKey(owner, scope)] = e.ID
	out := *e
	return &out, nil
}

func (v memoryView) SwapBalance(_ context.Context, id uint, version int64, balance decimal.Decimal) (bool, error) {
	e, ok := v.s.entries[id]
	if !ok {
		return false, ErrEntryNotFound
	}
	if e.Version != version {
		return false, nil
	}
	e.Balance = balance
	e.Version++
	e.UpdatedAt = time.Now()
	return true, nil
}

func (v memoryView) InsertReceipt(_ context.Context, receipt *models.CreditReceipt) (bool, error) {
	if _, ok := v.s.receipts[receipt.TxRef]; ok {
		return false, nil
	}
	receipt.CreatedAt = time.Now()
	v.s.receipts[receipt.TxRef] = *receipt
	return true, nil
}

func (v memoryView) Receipt(_ context.Context, txRef string) (*models.CreditReceipt, error) {
	r, ok := v.s.receipts[txRef]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &r, nil
}

// nested transactions join the outer one
func (v memoryView) Atomically(_ context.Context, fn func(Store) error) error {
	return fn(v)
}
