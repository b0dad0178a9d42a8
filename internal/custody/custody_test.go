package custody

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"bumpcontrol/internal/executor"
	"bumpcontrol/internal/wallet"
	solanautil "bumpcontrol/pkg/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateWalletIsStable(t *testing.T) {
	wallets := wallet.NewMemoryStore()
	keys := solanautil.NewKeyManager("pw")
	p := NewPaper(wallets, keys)
	ctx := context.Background()

	first, err := p.GetOrCreateWallet(ctx, "alice", 0)
	require.NoError(t, err)
	again, err := p.GetOrCreateWallet(ctx, "alice", 0)
	require.NoError(t, err)
	other, err := p.GetOrCreateWallet(ctx, "alice", 1)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, other)

	w, err := wallets.Get(ctx, "alice", 0)
	require.NoError(t, err)
	signer, err := keys.Signer(w.EncryptedKey)
	require.NoError(t, err)
	assert.Equal(t, first, signer.PublicKey().String())
}

func TestGetOrCreateWalletConcurrent(t *testing.T) {
	wallets := wallet.NewMemoryStore()
	p := NewPaper(wallets, solanautil.NewKeyManager("pw"))

	var wg sync.WaitGroup
	addrs := make([]string, 8)
	for i := range addrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr, err := p.GetOrCreateWallet(context.Background(), "bob", 3)
			assert.NoError(t, err)
			addrs[i] = addr
		}(i)
	}
	wg.Wait()

	for _, a := range addrs {
		assert.Equal(t, addrs[0], a)
	}
	list, err := wallets.List(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPaperSubmitAndConfirm(t *testing.T) {
	p := NewPaper(wallet.NewMemoryStore(), solanautil.NewKeyManager("pw"))
	ctx := context.Background()
	addr, err := p.GetOrCreateWallet(ctx, "alice", 0)
	require.NoError(t, err)

	_, err = p.Submit(ctx, "unknown", []executor.Call{{Program: "x"}})
	assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
	_, err = p.Submit(ctx, addr, nil)
	assert.Error(t, err)

	ref, err := p.Submit(ctx, addr, []executor.Call{{Program: "x"}})
	require.NoError(t, err)
	conf, err := p.AwaitConfirmation(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, executor.Confirmed, conf.Status)
	assert.True(t, conf.Spent.IsZero())

	_, err = p.AwaitConfirmation(ctx, ref)
	assert.ErrorIs(t, err, ErrUnknownTx)
}

func TestSolanaSubmitAndConfirm(t *testing.T) {
	wallets := wallet.NewMemoryStore()
	keys := solanautil.NewKeyManager("pw")
	sent := solana.Signature{1, 2, 3}
	var workerKey solana.PrivateKey

	client, stub := newRPCStub(t, map[string]rpcHandler{
		"getLatestBlockhash": func(json.RawMessage) (interface{}, string) {
			return map[string]interface{}{
				"context": map[string]interface{}{"slot": 10},
				"value":   map[string]interface{}{"blockhash": solana.Hash{4}.String(), "lastValidBlockHeight": 200},
			}, ""
		},
		"sendTransaction": func(params json.RawMessage) (interface{}, string) {
			var p []interface{}
			if err := json.Unmarshal(params, &p); err != nil || len(p) == 0 || p[0] == "" {
				return nil, "missing transaction"
			}
			return sent.String(), ""
		},
		"getSignatureStatuses": signatureStatus("confirmed", nil),
		"getTransaction": func(params json.RawMessage) (interface{}, string) {
			encoded := transferTx(t, workerKey, solana.SystemProgramID, 1)
			return txResult(encoded, []uint64{2_000_000_000, 1, 1}, []uint64{1_499_995_000, 1, 1}, nil)(params)
		},
	})
	s := NewSolana(client, wallets, keys)
	s.poll = 10 * time.Millisecond
	ctx := context.Background()

	addr, err := s.GetOrCreateWallet(ctx, "alice", 0)
	require.NoError(t, err)
	w, err := wallets.Get(ctx, "alice", 0)
	require.NoError(t, err)
	workerKey, err = keys.Signer(w.EncryptedKey)
	require.NoError(t, err)

	ref, err := s.Submit(ctx, addr, []executor.Call{{
		Program:  solana.SystemProgramID.String(),
		Accounts: []executor.AccountMeta{{Pubkey: addr, IsSigner: true, IsWritable: true}},
		Data:     []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
	}})
	require.NoError(t, err)
	assert.Equal(t, sent.String(), ref)
	assert.Equal(t, 1, stub.count("sendTransaction"))

	conf, err := s.AwaitConfirmation(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, executor.Confirmed, conf.Status)
	assert.True(t, decimal.RequireFromString("0.500005").Equal(conf.Spent), conf.Spent.String())
}

func TestSolanaSubmitRejectsBadCalls(t *testing.T) {
	client, stub := newRPCStub(t, nil)
	s := NewSolana(client, wallet.NewMemoryStore(), solanautil.NewKeyManager("pw"))
	ctx := context.Background()
	addr, err := s.GetOrCreateWallet(ctx, "alice", 0)
	require.NoError(t, err)

	_, err = s.Submit(ctx, addr, []executor.Call{{Program: "not-a-key"}})
	assert.ErrorContains(t, err, "bad program id")
	assert.Zero(t, stub.count("getLatestBlockhash"))
}

func TestSolanaAwaitConfirmation(t *testing.T) {
	ref := solana.Signature{9}.String()

	t.Run("reverted", func(t *testing.T) {
		client, _ := newRPCStub(t, map[string]rpcHandler{
			"getSignatureStatuses": signatureStatus("confirmed", map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}),
		})
		s := NewSolana(client, wallet.NewMemoryStore(), solanautil.NewKeyManager("pw"))
		conf, err := s.AwaitConfirmation(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, executor.Reverted, conf.Status)
		assert.Contains(t, conf.Err, "InstructionError")
	})

	t.Run("times out while pending", func(t *testing.T) {
		client, stub := newRPCStub(t, map[string]rpcHandler{
			"getSignatureStatuses": signatureStatus("", nil),
		})
		s := NewSolana(client, wallet.NewMemoryStore(), solanautil.NewKeyManager("pw"))
		s.poll = 5 * time.Millisecond
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := s.AwaitConfirmation(ctx, ref)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Greater(t, stub.count("getSignatureStatuses"), 1)
	})

	t.Run("confirmed without details", func(t *testing.T) {
		client, _ := newRPCStub(t, map[string]rpcHandler{
			"getSignatureStatuses": signatureStatus("finalized", nil),
			"getTransaction":       fails("not available"),
		})
		s := NewSolana(client, wallet.NewMemoryStore(), solanautil.NewKeyManager("pw"))
		conf, err := s.AwaitConfirmation(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, executor.Confirmed, conf.Status)
		assert.True(t, conf.Spent.IsZero())
	})

	t.Run("bad reference", func(t *testing.T) {
		s := NewSolana(nil, wallet.NewMemoryStore(), solanautil.NewKeyManager("pw"))
		_, err := s.AwaitConfirmation(context.Background(), "paper-123")
		assert.ErrorIs(t, err, ErrUnknownTx)
	})
}
