package core

import (
	"github.com/shopspring/decimal"
)

// validateSaleInput checks everything that does not need the database.
func validateSaleInput(in SaleInput) error {
	if len(in.Lines) == 0 {
		return validationf("sale must contain at least one line")
	}
	for i, l := range in.Lines {
		if l.Quantity <= 0 {
			return validationf("line %d: quantity must be positive, got %d", i+1, l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			return validationf("line %d: unit price cannot be negative", i+1)
		}
	}
	if in.Discount.IsNegative() {
		return validationf("discount cannot be negative")
	}
	if err := validatePayments(in.Payments); err != nil {
		return err
	}
	if in.Deferred {
		if len(in.Payments) > 0 {
			return validationf("a deferred sale carries no payments; supply them when finalizing")
		}
		if in.CashReceived != nil || in.ChangeGiven != nil {
			return validationf("a deferred sale records no cash handling")
		}
	}
	return nil
}

func validatePayments(payments []PaymentAllocation) error {
	for i, p := range payments {
		if !p.Amount.Round(2).IsPositive() {
			return validationf("payment %d: amount must be at least 0.01", i+1)
		}
		if !p.Method.Valid() {
			return validationf("payment %d: unknown payment method %q", i+1, p.Method)
		}
		if p.AccountID <= 0 {
			return validationf("payment %d: account is required", i+1)
		}
	}
	return nil
}

// SaleTotals returns Σ(qty × price) and that sum minus discount plus adjustment.
func SaleTotals(lines []SaleLineInput, discount, adjustment decimal.Decimal) (subtotal, total decimal.Decimal, err error) {
	subtotal = decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	total = subtotal.Sub(discount).Add(adjustment)
	if total.IsNegative() {
		return subtotal, total, validationf("sale total %s is negative after discount and adjustment", total.StringFixed(2))
	}
	return subtotal, total, nil
}

// ReconcilePayments requires the allocations to cover total within tolerance.
// A zero total needs no allocations.
func ReconcilePayments(total decimal.Decimal, payments []PaymentAllocation, tolerance decimal.Decimal) error {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	if paid.Sub(total).Abs().GreaterThan(tolerance) {
		return validationf("payments total %s does not match sale total %s", paid.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

// ChangeAdjustment is the cash kept (positive) or paid out (negative) beyond
// the cash allocations: cash received minus cash allocated minus change given.
// Both inputs must be present or both absent.
func ChangeAdjustment(payments []PaymentAllocation, cashReceived, changeGiven *decimal.Decimal) (decimal.Decimal, int, error) {
	if cashReceived == nil && changeGiven == nil {
		return decimal.Zero, 0, nil
	}
	if cashReceived == nil || changeGiven == nil {
		return decimal.Zero, 0, validationf("cash received and change given must be supplied together")
	}
	if cashReceived.IsNegative() || changeGiven.IsNegative() {
		return decimal.Zero, 0, validationf("cash received and change given cannot be negative")
	}

	cash := decimal.Zero
	cashAccount := 0
	for _, p := range payments {
		if p.Method == PaymentCash {
			cash = cash.Add(p.Amount)
			if cashAccount == 0 {
				cashAccount = p.AccountID
			}
		}
	}
	if cashAccount == 0 {
		return decimal.Zero, 0, validationf("cash received given but no cash payment allocated")
	}
	if cashReceived.LessThan(cash) {
		return decimal.Zero, 0, validationf("cash received %s is less than the cash allocated %s", cashReceived.StringFixed(2), cash.StringFixed(2))
	}
	return cashReceived.Sub(cash).Sub(*changeGiven), cashAccount, nil
}

// LineProfit is (price − cost) × qty, less the handling overhead per device.
func LineProfit(ref ProductRef, unitPrice, unitCost decimal.Decimal, qty int, overhead decimal.Decimal) decimal.Decimal {
	q := decimal.NewFromInt(int64(qty))
	return MatchProduct(ref,
		func(DeviceRef) decimal.Decimal { return unitPrice.Sub(unitCost).Sub(overhead).Mul(q) },
		func(AccessoryRef) decimal.Decimal { return unitPrice.Sub(unitCost).Mul(q) },
	)
}
