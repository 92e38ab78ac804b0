package domain

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places every monetary amount is kept at.
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// Round2 rounds to two decimal places, half away from zero.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyScale)
}

// MoneyFromFloat converts a stored float amount back into a rounded decimal.
func MoneyFromFloat(value float64) decimal.Decimal {
	return Round2(decimal.NewFromFloat(value))
}

// MoneyToFloat converts a rounded decimal into the float representation persisted in documents.
func MoneyToFloat(amount decimal.Decimal) float64 {
	return Round2(amount).InexactFloat64()
}

// MinorUnits converts an amount into the smallest currency unit used by payment gateways.
func MinorUnits(amount decimal.Decimal) int64 {
	return Round2(amount).Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts a gateway amount in the smallest currency unit into a decimal.
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Div(hundred).Round(MoneyScale)
}

// MaxZero returns the amount or zero when the amount is negative.
func MaxZero(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
