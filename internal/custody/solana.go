package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bumpcontrol/internal/executor"
	"bumpcontrol/internal/wallet"
	solanautil "bumpcontrol/pkg/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const lamportDecimals = 9

// Solana signs worker transactions with keys from the wallet store and
// submits them over RPC.
type Solana struct {
	provisioner
	client *rpc.Client
	poll   time.Duration
}

func NewSolana(client *rpc.Client, wallets wallet.Store, keys *solanautil.KeyManager) *Solana {
	return &Solana{
		provisioner: provisioner{wallets: wallets, keys: keys},
		client:      client,
		poll:        time.Second,
	}
}

func (s *Solana) Submit(ctx context.Context, address string, calls []executor.Call) (string, error) {
	w, err := s.wallets.GetByAddress(ctx, address)
	if err != nil {
		return "", err
	}
	signer, err := s.keys.Signer(w.EncryptedKey)
	if err != nil {
		return "", fmt.Errorf("open worker key: %w", err)
	}
	ixs, err := toInstructions(calls)
	if err != nil {
		return "", err
	}

	sig, err := solanautil.SendInstructions(ctx, s.client, signer, ixs)
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"wallet": address, "tx": sig.String(), "calls": len(calls)}).Debug("transaction submitted")
	return sig.String(), nil
}

// AwaitConfirmation waits for the signature, then reads the fee payer's
// balance change as the amount spent. A confirmed transaction whose details
// cannot be fetched reports zero spent.
func (s *Solana) AwaitConfirmation(ctx context.Context, txRef string) (executor.Confirmation, error) {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return executor.Confirmation{}, fmt.Errorf("%w: %s", ErrUnknownTx, txRef)
	}

	err = solanautil.WaitForConfirmation(ctx, s.client, sig, s.poll)
	if errors.Is(err, solanautil.ErrTxFailed) {
		return executor.Confirmation{Status: executor.Reverted, Err: err.Error()}, nil
	}
	if err != nil {
		return executor.Confirmation{}, err
	}

	conf := executor.Confirmation{Status: executor.Confirmed}
	txResult, err := solanautil.GetTransactionBySignature(ctx, s.client, txRef)
	if err != nil {
		log.WithField("tx", txRef).Warnf("confirmed but details unavailable: %v", err)
		return conf, nil
	}
	if _, delta, err := solanautil.FeePayerChange(txResult); err == nil && delta < 0 {
		conf.Spent = decimal.NewFromInt(-delta).Shift(-lamportDecimals)
	}
	return conf, nil
}

func toInstructions(calls []executor.Call) ([]solana.Instruction, error) {
	ixs := make([]solana.Instruction, 0, len(calls))
	for _, c := range calls {
		program, err := solana.PublicKeyFromBase58(c.Program)
		if err != nil {
			return nil, fmt.Errorf("bad program id %q: %w", c.Program, err)
		}
		metas := make(solana.AccountMetaSlice, 0, len(c.Accounts))
		for _, a := range c.Accounts {
			pk, err := solana.PublicKeyFromBase58(a.Pubkey)
			if err != nil {
				return nil, fmt.Errorf("bad account %q: %w", a.Pubkey, err)
			}
			metas = append(metas, solana.NewAccountMeta(pk, a.IsWritable, a.IsSigner))
		}
		ixs = append(ixs, solana.NewInstruction(program, metas, c.Data))
	}
	return ixs, nil
}
