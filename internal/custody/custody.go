// Package custody holds the worker keys and talks to the chain. Two backends
// satisfy the executor's Custody contract: Solana for real trades and Paper
// for dry runs.
package custody

import (
	"context"
	"errors"

	"bumpcontrol/internal/models"
	"bumpcontrol/internal/wallet"
	"bumpcontrol/pkg/solana"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrUnverifiable means the chain could not tell whether a deposit happened
	ErrUnverifiable = errors.New("deposit could not be verified")
	// ErrDepositRejected means the chain shows no matching inbound transfer
	ErrDepositRejected = errors.New("deposit rejected")
	ErrUnknownTx       = errors.New("unknown transaction reference")
)

// provisioner creates worker wallets on first use with sealed keys
type provisioner struct {
	wallets wallet.Store
	keys    *solana.KeyManager
}

func (p provisioner) GetOrCreateWallet(ctx context.Context, owner string, index int) (string, error) {
	w, err := p.wallets.Get(ctx, owner, index)
	if err == nil {
		return w.Address, nil
	}
	if !errors.Is(err, wallet.ErrWalletNotFound) {
		return "", err
	}

	address, sealed, err := p.keys.NewSealedKey()
	if err != nil {
		return "", err
	}
	err = p.wallets.Create(ctx, &models.WorkerWallet{
		OwnerID:      owner,
		WalletIndex:  index,
		Address:      address,
		EncryptedKey: sealed,
	})
	if errors.Is(err, wallet.ErrWalletExists) {
		// lost a race with another provisioner
		w, err := p.wallets.Get(ctx, owner, index)
		if err != nil {
			return "", err
		}
		return w.Address, nil
	}
	if err != nil {
		return "", err
	}

	log.WithFields(log.Fields{"owner": owner, "wallet": index, "address": address}).Info("worker wallet created")
	return address, nil
}
