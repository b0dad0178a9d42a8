package custody

import (
	"context"
	"fmt"
	"sync"

	"bumpcontrol/internal/executor"
	"bumpcontrol/internal/wallet"
	"bumpcontrol/pkg/solana"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Paper provisions real key pairs but never touches the chain. Every
// submitted batch confirms with no measured spend, so the executor debits
// the quoted input.
type Paper struct {
	provisioner

	mu        sync.Mutex
	submitted map[string]string
}

func NewPaper(wallets wallet.Store, keys *solana.KeyManager) *Paper {
	return &Paper{
		provisioner: provisioner{wallets: wallets, keys: keys},
		submitted:   map[string]string{},
	}
}

func (p *Paper) Submit(ctx context.Context, address string, calls []executor.Call) (string, error) {
	if _, err := p.wallets.GetByAddress(ctx, address); err != nil {
		return "", err
	}
	if len(calls) == 0 {
		return "", fmt.Errorf("empty batch")
	}
	ref := "paper-" + uuid.NewString()

	p.mu.Lock()
	p.submitted[ref] = address
	p.mu.Unlock()

	log.WithFields(log.Fields{"wallet": address, "tx": ref, "calls": len(calls)}).Info("paper trade submitted")
	return ref, nil
}

func (p *Paper) AwaitConfirmation(ctx context.Context, txRef string) (executor.Confirmation, error) {
	p.mu.Lock()
	_, ok := p.submitted[txRef]
	delete(p.submitted, txRef)
	p.mu.Unlock()
	if !ok {
		return executor.Confirmation{}, fmt.Errorf("%w: %s", ErrUnknownTx, txRef)
	}
	return executor.Confirmation{Status: executor.Confirmed}, nil
}
