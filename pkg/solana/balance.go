package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrTxNotFound means the node answered and has no such transaction
	ErrTxNotFound = errors.New("transaction not found")
)

// GetTransactionBySignature fetches a confirmed transaction by signature
func GetTransactionBySignature(ctx context.Context, client *rpc.Client, signature string) (*rpc.GetTransactionResult, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	maxVer := rpc.MaxSupportedTransactionVersion1
	txResult, err := client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVer,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, signature)
	}
	if err != nil {
		return nil, fmt.Errorf("getTransaction: %w", err)
	}
	if txResult == nil || txResult.Transaction == nil || txResult.Meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, signature)
	}
	return txResult, nil
}

// LamportChanges returns post - pre native balance for each address that
// appears in the transaction. Addresses not touched are absent.
func LamportChanges(txResult *rpc.GetTransactionResult, addresses ...string) (map[string]int64, error) {
	if txResult == nil || txResult.Transaction == nil || txResult.Meta == nil {
		return nil, fmt.Errorf("transaction or meta is nil")
	}
	tx, err := txResult.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	meta := txResult.Meta

	// static keys first, then addresses loaded from lookup tables
	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)

	if len(meta.PreBalances) != len(keys) || len(meta.PostBalances) != len(keys) {
		log.Warnf("balance arrays do not match account keys: keys=%d pre=%d post=%d", len(keys), len(meta.PreBalances), len(meta.PostBalances))
	}
	return lamportChanges(keys, meta.PreBalances, meta.PostBalances, addresses), nil
}

func lamportChanges(keys []solana.PublicKey, pre, post []uint64, addresses []string) map[string]int64 {
	out := make(map[string]int64, len(addresses))
	for _, addr := range addresses {
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			continue
		}
		for i, key := range keys {
			if !key.Equals(pk) || i >= len(pre) || i >= len(post) {
				continue
			}
			out[addr] = int64(post[i]) - int64(pre[i])
			break
		}
	}
	return out
}

// FeePayerChange returns the fee payer address and its native balance change
func FeePayerChange(txResult *rpc.GetTransactionResult) (string, int64, error) {
	if txResult == nil || txResult.Transaction == nil || txResult.Meta == nil {
		return "", 0, fmt.Errorf("transaction or meta is nil")
	}
	tx, err := txResult.Transaction.GetTransaction()
	if err != nil {
		return "", 0, fmt.Errorf("decode transaction: %w", err)
	}
	if len(tx.Message.AccountKeys) == 0 || len(txResult.Meta.PreBalances) == 0 || len(txResult.Meta.PostBalances) == 0 {
		return "", 0, fmt.Errorf("transaction has no fee payer balance")
	}
	payer := tx.Message.AccountKeys[0].String()
	return payer, int64(txResult.Meta.PostBalances[0]) - int64(txResult.Meta.PreBalances[0]), nil
}
