// Package billing holds the deterministic fee and tax calculations for
// sessions and payments. Both calculators are pure: they never touch storage
// and can back preview endpoints without persisting anything.
package billing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid calculation input")

var (
	platformFeeRate = decimal.NewFromFloat(0.10)
	gstRate         = decimal.NewFromFloat(0.18)
	secondsPerHour  = decimal.NewFromInt(3600)
)

const (
	GSTRateLabel         = "18%"
	PlatformFeeRateLabel = "10%"
)

// SessionAmounts are the derived figures for a single session. GSTAmount is
// informational at session level: it is reported but not subtracted from the
// payout. The payment-level calculation deducts it; the two formulas are
// intentionally different and must stay that way.
type SessionAmounts struct {
	CalculatedAmount  decimal.Decimal
	PlatformFee       decimal.Decimal
	GSTAmount         decimal.Decimal
	FinalPayoutAmount decimal.Decimal
}

// CalculateSession derives the session amounts from duration, hourly rate and
// deductions. Values are left unrounded so downstream figures are computed
// from the exact amount; round with Rounded at the persistence boundary.
func CalculateSession(durationSeconds int64, hourlyRate, deductions decimal.Decimal) (SessionAmounts, error) {
	if durationSeconds <= 0 {
		return SessionAmounts{}, ErrInvalidInput
	}
	if hourlyRate.LessThanOrEqual(decimal.Zero) {
		return SessionAmounts{}, ErrInvalidInput
	}
	if deductions.IsNegative() {
		return SessionAmounts{}, ErrInvalidInput
	}

	durationInHours := decimal.NewFromInt(durationSeconds).Div(secondsPerHour)
	calculated := hourlyRate.Mul(durationInHours)

	amounts := SessionAmounts{
		CalculatedAmount: calculated,
		PlatformFee:      calculated.Mul(platformFeeRate),
		GSTAmount:        calculated.Mul(gstRate),
	}
	amounts.FinalPayoutAmount = calculated.Sub(amounts.PlatformFee).Sub(deductions)
	return amounts, nil
}

// Rounded returns a copy with every figure rounded half-up to two decimal
// places, the form in which amounts are persisted and displayed.
func (a SessionAmounts) Rounded() SessionAmounts {
	return SessionAmounts{
		CalculatedAmount:  a.CalculatedAmount.Round(2),
		PlatformFee:       a.PlatformFee.Round(2),
		GSTAmount:         a.GSTAmount.Round(2),
		FinalPayoutAmount: a.FinalPayoutAmount.Round(2),
	}
}

// PaymentAmounts are the settlement figures for one payment batch.
// GrossAmount keeps the admin-supplied input; NetPayable is what the mentor
// actually receives after GST and the platform fee are deducted.
type PaymentAmounts struct {
	GrossAmount     decimal.Decimal
	GSTAmount       decimal.Decimal
	GSTRate         string
	PlatformFee     decimal.Decimal
	PlatformFeeRate string
	NetPayable      decimal.Decimal
}

// CalculatePayment derives the payment-level deduction breakdown from the
// gross batch total. Unlike the session calculation, GST is deducted here.
func CalculatePayment(gross decimal.Decimal) (PaymentAmounts, error) {
	if gross.LessThanOrEqual(decimal.Zero) {
		return PaymentAmounts{}, ErrInvalidInput
	}

	amounts := PaymentAmounts{
		GrossAmount:     gross,
		GSTAmount:       gross.Mul(gstRate),
		GSTRate:         GSTRateLabel,
		PlatformFee:     gross.Mul(platformFeeRate),
		PlatformFeeRate: PlatformFeeRateLabel,
	}
	amounts.NetPayable = gross.Sub(amounts.GSTAmount).Sub(amounts.PlatformFee)
	return amounts, nil
}

// Rounded returns a copy with every figure rounded half-up to two decimal
// places.
func (a PaymentAmounts) Rounded() PaymentAmounts {
	return PaymentAmounts{
		GrossAmount:     a.GrossAmount.Round(2),
		GSTAmount:       a.GSTAmount.Round(2),
		GSTRate:         a.GSTRate,
		PlatformFee:     a.PlatformFee.Round(2),
		PlatformFeeRate: a.PlatformFeeRate,
		NetPayable:      a.NetPayable.Round(2),
	}
}
