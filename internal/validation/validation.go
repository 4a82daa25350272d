// Package validation содержит функции разбора и проверки пользовательского ввода.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice возвращается, если цена не является положительным числом.
var ErrInvalidPrice = errors.New("price must be a positive number")

// MaxPrice ограничивает цену так, чтобы итоговая стоимость помещалась в NUMERIC(14, 2).
var MaxPrice = decimal.NewFromInt(10_000_000)

var (
	linkPattern  = regexp.MustCompile(`https?://\S+`)
	pricePattern = regexp.MustCompile(`^\d{1,9}(\.\d{1,2})?$`)
)

// ParsePrice разбирает цену в юанях: не больше двух знаков после разделителя
// и не больше MaxPrice. Допускается запятая в качестве десятичного разделителя.
func ParsePrice(input string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(input), ",", ".")
	if !pricePattern.MatchString(s) {
		return decimal.Zero, ErrInvalidPrice
	}

	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	if !price.IsPositive() || price.GreaterThan(MaxPrice) {
		return decimal.Zero, ErrInvalidPrice
	}
	return price, nil
}

// ExtractLink возвращает первую ссылку из текста или весь текст, если ссылки нет.
func ExtractLink(input string) string {
	s := strings.TrimSpace(input)
	if link := linkPattern.FindString(s); link != "" {
		return link
	}
	return s
}

// NormalizeCode приводит промокод или реферальный код к каноническому виду.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
