// Package pricing считает стоимость заказа по фиксированному курсу и комиссии.
package pricing

import "github.com/shopspring/decimal"

const (
	// ExchangeRate фиксированный курс юаня к рублю.
	ExchangeRate = 13
	// HighTierThreshold цена в юанях, выше которой берётся повышенная комиссия.
	HighTierThreshold = 3000
	// LowTierCommission комиссия для цены не выше порога.
	LowTierCommission = 1500
	// HighTierCommission комиссия для цены выше порога.
	HighTierCommission = 2500
)

// Quote содержит результат расчёта стоимости одной позиции.
type Quote struct {
	Price      decimal.Decimal
	Rate       decimal.Decimal
	Commission decimal.Decimal
	FinalPrice decimal.Decimal
}

// Commission возвращает комиссию для цены в юанях.
func Commission(price decimal.Decimal) decimal.Decimal {
	if price.GreaterThan(decimal.NewFromInt(HighTierThreshold)) {
		return decimal.NewFromInt(HighTierCommission)
	}
	return decimal.NewFromInt(LowTierCommission)
}

// Calculate считает итоговую стоимость: price × курс + комиссия.
func Calculate(price decimal.Decimal) Quote {
	rate := decimal.NewFromInt(ExchangeRate)
	commission := Commission(price)
	return Quote{
		Price:      price,
		Rate:       rate,
		Commission: commission,
		FinalPrice: price.Mul(rate).Add(commission),
	}
}
