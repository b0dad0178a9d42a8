package executor

import (
	"fmt"

	"bumpcontrol/internal/rotation"

	"github.com/shopspring/decimal"
)

// Outcome is the result of one Execute call
type Outcome struct {
	Kind      rotation.Outcome
	TxRef     string
	Spent     decimal.Decimal
	Required  decimal.Decimal
	Available decimal.Decimal
	Reason    string
}

func Succeeded(txRef string, spent decimal.Decimal) Outcome {
	return Outcome{Kind: rotation.Success, TxRef: txRef, Spent: spent}
}

func Insufficient(required, available decimal.Decimal) Outcome {
	return Outcome{Kind: rotation.InsufficientBalance, Required: required, Available: available}
}

func Failed(format string, args ...interface{}) Outcome {
	return Outcome{Kind: rotation.Failed, Reason: fmt.Sprintf(format, args...)}
}

func (o Outcome) String() string {
	switch o.Kind {
	case rotation.Success:
		return fmt.Sprintf("success tx=%s spent=%s", o.TxRef, o.Spent)
	case rotation.InsufficientBalance:
		return fmt.Sprintf("insufficient required=%s available=%s", o.Required, o.Available)
	default:
		return "failed: " + o.Reason
	}
}
