package transformer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RateSource returns how many units of the settlement currency one unit of
// currency is worth.
type RateSource interface {
	Rate(currency string) (decimal.Decimal, bool)
}

// StaticRateSource serves fixed rates loaded from configuration. The values
// are placeholders; deployments that convert real money should inject a
// source backed by a market feed.
type StaticRateSource map[string]decimal.Decimal

func NewStaticRateSource(raw map[string]string) (StaticRateSource, error) {
	rates := make(StaticRateSource, len(raw))
	for code, value := range raw {
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", code, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("invalid rate for %s: must be positive", code)
		}
		rates[strings.ToUpper(code)] = rate
	}
	return rates, nil
}

func (s StaticRateSource) Rate(currency string) (decimal.Decimal, bool) {
	rate, ok := s[strings.ToUpper(currency)]
	return rate, ok
}

// Conversion is the factor applied to every amount of one payload, so line
// items follow the same rule as the declared total.
type Conversion struct {
	Factor   decimal.Decimal
	Currency string
	Warning  string
}

func (c Conversion) Apply(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(c.Factor).Round(2)
}

type AmountNormalizer struct {
	settlement string
	rates      RateSource
	minorUnit  map[string]bool
	threshold  decimal.Decimal
}

func NewAmountNormalizer(settlement string, rates RateSource, minorUnitCurrencies []string, threshold int) *AmountNormalizer {
	minor := make(map[string]bool, len(minorUnitCurrencies))
	for _, code := range minorUnitCurrencies {
		minor[strings.ToUpper(code)] = true
	}
	settlement = strings.ToUpper(strings.TrimSpace(settlement))
	if settlement == "" {
		settlement = "ARS"
	}
	return &AmountNormalizer{
		settlement: settlement,
		rates:      rates,
		minorUnit:  minor,
		threshold:  decimal.NewFromInt(int64(threshold)),
	}
}

func (n *AmountNormalizer) Settlement() string {
	return n.settlement
}

// Conversion decides how amounts of the given currency reach the settlement
// currency. Amounts are treated as minor units when the shape says so, or
// when the currency is commonly sent in minor units and the amount exceeds
// the threshold. Without a rate the currency is kept and a warning is set.
func (n *AmountNormalizer) Conversion(amount decimal.Decimal, currency string, minorUnits bool) Conversion {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = n.settlement
	}

	factor := decimal.NewFromInt(1)
	if minorUnits || (n.minorUnit[currency] && amount.GreaterThan(n.threshold)) {
		factor = factor.Div(hundred)
	}

	if currency == n.settlement {
		return Conversion{Factor: factor, Currency: currency}
	}

	if n.rates != nil {
		if rate, ok := n.rates.Rate(currency); ok {
			return Conversion{Factor: factor.Mul(rate), Currency: n.settlement}
		}
	}
	return Conversion{
		Factor:   factor,
		Currency: currency,
		Warning:  fmt.Sprintf("no conversion rate from %s to %s", currency, n.settlement),
	}
}
