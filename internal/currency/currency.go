// Package currency converts amounts between the supported currencies using a
// static rate table. Rates are not fetched live.
package currency

import (
	"fmt"
	"sort"
	"strings"
)

// Reference is the currency every rate is expressed against.
const Reference = "USD"

// Default is the primary currency used until the user picks another.
const Default = Reference

// Info describes one supported currency.
type Info struct {
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Symbol string  `json:"symbol"`
	Rate   float64 `json:"rate"`
}

var supported = map[string]Info{
	"USD": {Code: "USD", Name: "US Dollar", Symbol: "$", Rate: 1.0},
	"EUR": {Code: "EUR", Name: "Euro", Symbol: "€", Rate: 0.92},
	"GBP": {Code: "GBP", Name: "British Pound", Symbol: "£", Rate: 0.79},
	"JPY": {Code: "JPY", Name: "Japanese Yen", Symbol: "¥", Rate: 157.0},
	"SEK": {Code: "SEK", Name: "Swedish Krona", Symbol: "kr", Rate: 10.45},
}

// Convert expresses amount, given in from, in to.
//
// Unknown codes are treated as the reference currency (rate 1.0) instead of
// failing, so a typo silently converts at parity.
func Convert(amount float64, from, to string) float64 {
	if from == to {
		return amount
	}
	return amount / rate(from) * rate(to)
}

func rate(code string) float64 {
	if info, ok := supported[strings.ToUpper(code)]; ok && info.Rate > 0 {
		return info.Rate
	}
	return 1.0
}

// Format renders amount with two decimals and no grouping, prefixed by the
// currency symbol, or the code itself when no symbol is known.
func Format(amount float64, code string) string {
	return fmt.Sprintf("%s%.2f", Symbol(code), amount)
}

// Symbol returns the display symbol for code, falling back to code.
func Symbol(code string) string {
	if info, ok := supported[strings.ToUpper(code)]; ok && info.Symbol != "" {
		return info.Symbol
	}
	return code
}

// IsSupported reports whether code is in the rate table.
func IsSupported(code string) bool {
	_, ok := supported[strings.ToUpper(code)]
	return ok
}

// Supported lists the supported currencies sorted by code.
func Supported() []Info {
	out := make([]Info, 0, len(supported))
	for _, info := range supported {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Codes lists the supported currency codes sorted.
func Codes() []string {
	infos := Supported()
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Code
	}
	return out
}
