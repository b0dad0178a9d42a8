package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultJupiterBaseURL = "https://lite-api.jup.ag/swap/v1"

	SolMint      = "So11111111111111111111111111111111111111112"
	UsdcMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	usdcDecimals = 6
)

// JupiterQuoteResponse represents the response structure from Jupiter API.
// Raw keeps the exact payload, which swap-instructions expects back.
type JupiterQuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlan     `json:"routePlan"`
	ContextSlot          int             `json:"contextSlot"`
	TimeTaken            float64         `json:"timeTaken"`
	Raw                  json.RawMessage `json:"-"`
}

// RoutePlan represents a route plan in the Jupiter response
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// SwapInfo represents swap information in a route plan
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// JupiterAccountMeta is an account of a swap-instructions instruction
type JupiterAccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// JupiterInstruction carries base64 instruction data
type JupiterInstruction struct {
	ProgramID string               `json:"programId"`
	Accounts  []JupiterAccountMeta `json:"accounts"`
	Data      string               `json:"data"`
}

// SwapInstructionsResponse is the decoded /swap-instructions payload
type SwapInstructionsResponse struct {
	ComputeBudgetInstructions   []JupiterInstruction `json:"computeBudgetInstructions"`
	SetupInstructions           []JupiterInstruction `json:"setupInstructions"`
	SwapInstruction             JupiterInstruction   `json:"swapInstruction"`
	CleanupInstruction          *JupiterInstruction  `json:"cleanupInstruction"`
	AddressLookupTableAddresses []string             `json:"addressLookupTableAddresses"`
	Error                       string               `json:"error"`
}

// JupiterClient talks to the Jupiter swap API with a shared rate limit
type JupiterClient struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	slippageBps int
}

// NewJupiterClient creates a client. rps <= 0 disables throttling.
func NewJupiterClient(baseURL string, rps float64, slippageBps int) *JupiterClient {
	if baseURL == "" {
		baseURL = DefaultJupiterBaseURL
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &JupiterClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     rate.NewLimiter(limit, 1),
		slippageBps: slippageBps,
	}
}

// GetQuote retrieves an ExactIn quote for amount raw units of inputMint.
// Routes are restricted to legacy transactions so they need no lookup tables.
func (c *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (*JupiterQuoteResponse, error) {
	if amount == 0 {
		return nil, fmt.Errorf("quote amount must be positive")
	}
	params := url.Values{}
	params.Add("inputMint", inputMint)
	params.Add("outputMint", outputMint)
	params.Add("amount", strconv.FormatUint(amount, 10))
	params.Add("slippageBps", strconv.Itoa(c.slippageBps))
	params.Add("restrictIntermediateTokens", "true")
	params.Add("asLegacyTransaction", "true")

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var quote JupiterQuoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	if quote.OutAmount == "" {
		return nil, fmt.Errorf("quote has no outAmount")
	}
	quote.Raw = body
	return &quote, nil
}

// GetSwapInstructions turns a quote into instructions for userPublicKey
func (c *JupiterClient) GetSwapInstructions(ctx context.Context, quote *JupiterQuoteResponse, userPublicKey string) (*SwapInstructionsResponse, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"quoteResponse":           quote.Raw,
		"userPublicKey":           userPublicKey,
		"wrapAndUnwrapSol":        true,
		"asLegacyTransaction":     true,
		"dynamicComputeUnitLimit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/swap-instructions", payload)
	if err != nil {
		return nil, err
	}
	var resp SwapInstructionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode swap instructions: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("swap instructions: %s", resp.Error)
	}
	if resp.SwapInstruction.ProgramID == "" {
		return nil, fmt.Errorf("swap instructions missing swapInstruction")
	}
	return &resp, nil
}

// GetUSDPrice prices one whole unit of mint in USDC. Every call goes to
// the API; a failed lookup is an error, never an old price.
func (c *JupiterClient) GetUSDPrice(ctx context.Context, mint string, decimals int32) (decimal.Decimal, error) {
	if mint == UsdcMint {
		return decimal.NewFromInt(1), nil
	}
	oneUnit := decimal.New(1, decimals)
	quote, err := c.GetQuote(ctx, mint, UsdcMint, uint64(oneUnit.IntPart()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get price quote: %w", err)
	}
	out, err := decimal.NewFromString(quote.OutAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse outAmount: %w", err)
	}
	return out.Shift(-usdcDecimals), nil
}

func (c *JupiterClient) do(ctx context.Context, method, fullURL string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request failed with status: %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
