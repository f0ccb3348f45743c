// Package fees computes processor fees, tip-fee absorption and donor-side
// fee recovery on integer minor units.
package fees

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	DefaultRate  = decimal.RequireFromString("0.029")
	DefaultFixed = int64(30)
)

// maxRecoveryPasses bounds the correction loop in RecoveryFee.
const maxRecoveryPasses = 8

type Calculator struct {
	Rate  decimal.Decimal
	Fixed int64
}

func Default() Calculator {
	return Calculator{Rate: DefaultRate, Fixed: DefaultFixed}
}

// New parses rate as a decimal fraction. It must be in [0, 1).
func New(rate string, fixed int64) (Calculator, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return Calculator{}, errors.Wrapf(err, "invalid fee rate %q", rate)
	}
	if r.IsNegative() || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Calculator{}, errors.Errorf("fee rate %s out of range [0, 1)", rate)
	}
	if fixed < 0 {
		return Calculator{}, errors.Errorf("fixed fee %d is negative", fixed)
	}
	return Calculator{Rate: r, Fixed: fixed}, nil
}

// ProcessorFee is round(amount*rate + fixed), half away from zero.
func (c Calculator) ProcessorFee(amount int64) int64 {
	return c.Rate.Mul(decimal.NewFromInt(amount)).
		Add(decimal.NewFromInt(c.Fixed)).
		Round(0).
		IntPart()
}

// AbsorbTipFee moves the processor's marginal cut of the tip from tip to
// amount. The sum is unchanged.
func (c Calculator) AbsorbTipFee(amount, tip int64) (int64, int64) {
	if tip <= 0 {
		return amount, tip
	}
	share := c.ProcessorFee(amount+tip) - c.ProcessorFee(amount)
	if share > tip {
		share = tip
	}
	if share < 0 {
		share = 0
	}
	return amount + share, tip - share
}

// RecoveryFee is the fee added on top of amount so the net after the
// processor's cut is amount. It starts from the algebraic estimate and
// re-derives the fee from the charge until it stops moving.
func (c Calculator) RecoveryFee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	one := decimal.NewFromInt(1)
	fee := c.Rate.Mul(decimal.NewFromInt(amount)).
		Add(decimal.NewFromInt(c.Fixed)).
		Div(one.Sub(c.Rate)).
		Round(0).
		IntPart()

	for i := 0; i < maxRecoveryPasses; i++ {
		next := c.ProcessorFee(amount + fee)
		if next == fee {
			break
		}
		fee = next
	}
	return fee
}

// Net is what the nonprofit keeps from a charge.
func (c Calculator) Net(charge int64) int64 {
	return charge - c.ProcessorFee(charge)
}

type Breakdown struct {
	Amount int64 `json:"amount"`
	Fee    int64 `json:"fee"`
	Tip    int64 `json:"tip"`
	Total  int64 `json:"total"`
}

// Breakdown prices a donation for display: the optional recovered fee and
// the tip go on top of amount.
func (c Calculator) Breakdown(amount, tip int64, recoverFees bool) Breakdown {
	b := Breakdown{Amount: amount, Tip: tip}
	if recoverFees {
		b.Fee = c.RecoveryFee(amount)
	}
	b.Total = b.Amount + b.Fee + b.Tip
	return b
}
