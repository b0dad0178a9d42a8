package custody

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

// rpcHandler returns a result, or an error message when the string is set
type rpcHandler func(params json.RawMessage) (interface{}, string)

type rpcStub struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string]int
}

func newRPCStub(t *testing.T, handlers map[string]rpcHandler) (*rpc.Client, *rpcStub) {
	stub := &rpcStub{handlers: handlers, calls: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		stub.mu.Lock()
		stub.calls[req.Method]++
		h, ok := stub.handlers[req.Method]
		stub.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if !ok {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		} else if result, msg := h(req.Params); msg != "" {
			resp["error"] = map[string]interface{}{"code": -32000, "message": msg}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return rpc.New(srv.URL), stub
}

func (s *rpcStub) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// transferTx builds a signed transfer; account keys are [from, to, system]
func transferTx(t *testing.T, from solana.PrivateKey, to solana.PublicKey, lamports uint64) string {
	ix := system.NewTransferInstruction(lamports, from.PublicKey(), to).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{7}, solana.TransactionPayer(from.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from.PublicKey()) {
			return &from
		}
		return nil
	})
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func txResult(encoded string, pre, post []uint64, txErr interface{}) rpcHandler {
	return func(json.RawMessage) (interface{}, string) {
		return map[string]interface{}{
			"slot":        10,
			"blockTime":   1700000000,
			"transaction": []string{encoded, "base64"},
			"meta": map[string]interface{}{
				"err":               txErr,
				"fee":               5000,
				"preBalances":       pre,
				"postBalances":      post,
				"innerInstructions": []interface{}{},
				"logMessages":       []string{},
				"preTokenBalances":  []interface{}{},
				"postTokenBalances": []interface{}{},
				"loadedAddresses":   map[string]interface{}{"writable": []string{}, "readonly": []string{}},
			},
		}, ""
	}
}

func signatureStatus(status string, txErr interface{}) rpcHandler {
	return func(json.RawMessage) (interface{}, string) {
		var value interface{}
		if status != "" {
			value = map[string]interface{}{"slot": 10, "confirmations": nil, "err": txErr, "confirmationStatus": status}
		}
		return map[string]interface{}{"context": map[string]interface{}{"slot": 10}, "value": []interface{}{value}}, ""
	}
}

func fails(msg string) rpcHandler {
	return func(json.RawMessage) (interface{}, string) { return nil, msg }
}

func newKey(t *testing.T) solana.PrivateKey {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}
