/*
payout.go - Rate & payout policy

PURPOSE:
  Pure fee arithmetic, no side effects. Given a payment amount and method,
  computes the platform's cut and what the teacher receives.

POLICY:
  platform: fee = amount x 15%, rounded half-up to the nearest integer
            currency unit; teacher receives amount - fee
  direct:   fee = 0; teacher receives the full amount

PRECISION:
  decimal.Decimal throughout. Round(0) rounds half away from zero, which
  for the non-negative amounts accepted here is exactly round-half-up.

SEE ALSO:
  - billing/service.go: Applies this policy when payments are submitted
*/
package market

import "github.com/shopspring/decimal"

// PlatformFeeRate is the platform's cut of platform-routed payments (15%).
var PlatformFeeRate = decimal.NewFromFloat(0.15)

// Payout is the split of a payment amount between platform and teacher.
// Invariant: PlatformFee + TeacherReceives == the original amount.
type Payout struct {
	PlatformFee     decimal.Decimal
	TeacherReceives decimal.Decimal
}

// ComputePayout splits amount according to the payment method.
// Returns InvalidAmountError for negative amounts.
func ComputePayout(amount decimal.Decimal, method PaymentMethod) (Payout, error) {
	if amount.IsNegative() {
		return Payout{}, &InvalidAmountError{Amount: amount}
	}

	if method == PayPlatform {
		fee := amount.Mul(PlatformFeeRate).Round(0)
		return Payout{
			PlatformFee:     fee,
			TeacherReceives: amount.Sub(fee),
		}, nil
	}

	return Payout{
		PlatformFee:     decimal.Zero,
		TeacherReceives: amount,
	}, nil
}
