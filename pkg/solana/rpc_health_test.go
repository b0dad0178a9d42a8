package solana

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRPCList(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","result":"ok","id":1}`))
	}))
	defer healthy.Close()
	behind := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32005,"message":"Node is behind"},"id":1}`))
	}))
	defer behind.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	results := CheckRPCList(context.Background(), []string{healthy.URL, behind.URL, down.URL}, time.Second)
	require.Len(t, results, 3)

	assert.True(t, results[0].OK)
	assert.Equal(t, healthy.URL, results[0].URL)
	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Error, "Node is behind")
	assert.False(t, results[2].OK)
	assert.Contains(t, results[2].Error, "502")
}
