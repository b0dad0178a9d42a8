package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// RPCCheckResult represents the result of checking an RPC endpoint
type RPCCheckResult struct {
	URL     string        `json:"url"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

var healthRequest = []byte(`{"jsonrpc":"2.0","id":1,"method":"getHealth","params":[]}`)

// CheckRPCList calls getHealth on every endpoint concurrently. Results keep
// the order of urls.
func CheckRPCList(ctx context.Context, urls []string, timeout time.Duration) []RPCCheckResult {
	client := &http.Client{Timeout: timeout}
	results := make([]RPCCheckResult, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			start := time.Now()
			err := checkRPC(ctx, client, url)
			results[i] = RPCCheckResult{URL: url, OK: err == nil, Latency: time.Since(start)}
			if err != nil {
				results[i].Error = err.Error()
			}
		}(i, url)
	}
	wg.Wait()
	return results
}

func checkRPC(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(healthRequest))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status code: %d", resp.StatusCode)
	}

	var body struct {
		Error *json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if body.Error != nil {
		return fmt.Errorf("rpc error: %s", string(*body.Error))
	}
	return nil
}
