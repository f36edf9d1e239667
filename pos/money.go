package pos

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places every stored amount carries.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Round rounds to MoneyPlaces using round half away from zero.
// Every WAC, total and report figure goes through this function.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// WeightedAverage returns the unit cost after adding addedQty units at
// addedCost to currentQty units valued at currentCost.
//
// When the resulting stock would be zero, or there was no stock before,
// the incoming cost becomes the new average.
func WeightedAverage(currentQty int64, currentCost decimal.Decimal, addedQty int64, addedCost decimal.Decimal) decimal.Decimal {
	newQty := currentQty + addedQty
	if currentQty <= 0 || newQty <= 0 {
		return Round(addedCost)
	}
	value := currentCost.Mul(decimal.NewFromInt(currentQty)).
		Add(addedCost.Mul(decimal.NewFromInt(addedQty)))
	return Round(value.Div(decimal.NewFromInt(newQty)))
}

// Margin returns profit as a percentage of revenue, 0 when there is no revenue.
func Margin(profit, revenue decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return Round(profit.Div(revenue).Mul(hundred))
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
