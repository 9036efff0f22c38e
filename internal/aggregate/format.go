package aggregate

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const rupee = "₹"

var (
	million  = decimal.NewFromInt(1_000_000)
	lakh     = decimal.NewFromInt(100_000)
	thousand = decimal.NewFromInt(1_000)
)

// FormatAmount abbreviates an amount for metric cards: ₹1.2M, ₹3.5L, ₹2.0K,
// or a whole-rupee value below one thousand.
func FormatAmount(v decimal.Decimal) string {
	switch {
	case v.GreaterThanOrEqual(million):
		return rupee + v.Div(million).StringFixed(1) + "M"
	case v.GreaterThanOrEqual(lakh):
		return rupee + v.Div(lakh).StringFixed(1) + "L"
	case v.GreaterThanOrEqual(thousand):
		return rupee + v.Div(thousand).StringFixed(1) + "K"
	default:
		return rupee + v.StringFixed(0)
	}
}

// FormatCurrency renders an amount with thousands separators, optionally
// with two decimals.
func FormatCurrency(v decimal.Decimal, decimals bool) string {
	p := message.NewPrinter(language.English)
	if decimals {
		return rupee + p.Sprintf("%.2f", v.Round(2).InexactFloat64())
	}
	return rupee + p.Sprintf("%d", v.Round(0).IntPart())
}
