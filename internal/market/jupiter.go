// Package market adapts the Jupiter client to the executor's quote and
// price interfaces.
package market

import (
	"context"
	"encoding/base64"
	"fmt"

	"bumpcontrol/internal/executor"
	"bumpcontrol/pkg/utils"

	"github.com/shopspring/decimal"
)

// Jupiter quotes swaps and prices assets through one JupiterClient
type Jupiter struct {
	client          *utils.JupiterClient
	fundingDecimals int32
	decimals        map[string]int32
}

// NewJupiter builds the adapter. decimals maps mint to token precision for
// price lookups; unknown mints default to 9.
func NewJupiter(client *utils.JupiterClient, fundingDecimals int32, decimals map[string]int32) *Jupiter {
	if decimals == nil {
		decimals = map[string]int32{}
	}
	return &Jupiter{client: client, fundingDecimals: fundingDecimals, decimals: decimals}
}

func (j *Jupiter) Quote(ctx context.Context, req executor.QuoteRequest) (*executor.Quote, error) {
	raw := req.Amount.Shift(j.fundingDecimals).IntPart()
	if raw <= 0 {
		return nil, fmt.Errorf("amount %s is below one base unit", req.Amount)
	}

	quote, err := j.client.GetQuote(ctx, req.Sell, req.Buy, uint64(raw))
	if err != nil {
		return nil, err
	}
	ix, err := j.client.GetSwapInstructions(ctx, quote, req.Taker)
	if err != nil {
		return nil, err
	}

	out := &executor.Quote{Target: ix.SwapInstruction.ProgramID}
	if out.InAmount, err = decimal.NewFromString(quote.InAmount); err != nil {
		return nil, fmt.Errorf("bad inAmount %q: %w", quote.InAmount, err)
	}
	out.InAmount = out.InAmount.Shift(-j.fundingDecimals)
	if out.EstimatedOut, err = decimal.NewFromString(quote.OutAmount); err != nil {
		return nil, fmt.Errorf("bad outAmount %q: %w", quote.OutAmount, err)
	}

	setup := append(append([]utils.JupiterInstruction{}, ix.ComputeBudgetInstructions...), ix.SetupInstructions...)
	if out.Setup, err = toCalls(setup); err != nil {
		return nil, err
	}
	swap := []utils.JupiterInstruction{ix.SwapInstruction}
	if ix.CleanupInstruction != nil {
		swap = append(swap, *ix.CleanupInstruction)
	}
	if out.Swap, err = toCalls(swap); err != nil {
		return nil, err
	}
	return out, nil
}

// Price returns the USD price of one whole unit of asset
func (j *Jupiter) Price(ctx context.Context, asset string) (decimal.Decimal, error) {
	dec, ok := j.decimals[asset]
	if !ok {
		dec = 9
	}
	return j.client.GetUSDPrice(ctx, asset, dec)
}

func toCalls(ixs []utils.JupiterInstruction) ([]executor.Call, error) {
	calls := make([]executor.Call, 0, len(ixs))
	for _, ix := range ixs {
		data, err := base64.StdEncoding.DecodeString(ix.Data)
		if err != nil {
			return nil, fmt.Errorf("decode instruction data for %s: %w", ix.ProgramID, err)
		}
		accounts := make([]executor.AccountMeta, len(ix.Accounts))
		for i, a := range ix.Accounts {
			accounts[i] = executor.AccountMeta{Pubkey: a.Pubkey, IsSigner: a.IsSigner, IsWritable: a.IsWritable}
		}
		calls = append(calls, executor.Call{Program: ix.ProgramID, Accounts: accounts, Data: data})
	}
	return calls, nil
}
