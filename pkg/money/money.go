// Package money holds the Money value type used across the ledger. Amounts are
// kept as integer cents so sums and differences are exact; fractional math
// (cost per mg, heuristics) goes through shopspring/decimal and is rounded back
// to cents half away from zero.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount of Brazilian reais expressed in cents.
type Money int64

const Zero Money = 0

var hundred = decimal.NewFromInt(100)

// FromCents builds a Money from a cent count.
func FromCents(cents int64) Money { return Money(cents) }

// FromReais builds a Money from a whole-unit integer amount.
func FromReais(reais int64) Money { return Money(reais * 100) }

// FromDecimal rounds d (in reais) to the nearest cent.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Mul(hundred).Round(0).IntPart())
}

// FromFloat rounds f (in reais) to the nearest cent. NaN and ±Inf become zero.
func FromFloat(f float64) Money {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero
	}
	return FromDecimal(decimal.NewFromFloat(f))
}

func (m Money) Cents() int64 { return int64(m) }

// Decimal returns the amount in reais.
func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -2) }

// Float64 returns the amount in reais. Only meant for charting output.
func (m Money) Float64() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// Mul scales the amount by factor, rounding to the nearest cent.
func (m Money) Mul(factor decimal.Decimal) Money {
	return FromDecimal(m.Decimal().Mul(factor))
}

// DivInt splits the amount into n parts, rounding to the nearest cent.
func (m Money) DivInt(n int64) Money {
	if n == 0 {
		return Zero
	}
	return FromDecimal(m.Decimal().Div(decimal.NewFromInt(n)))
}

func (m Money) IsPositive() bool { return m > 0 }

// Positive clamps negative amounts to zero.
func (m Money) Positive() Money {
	if m < 0 {
		return Zero
	}
	return m
}

func (m Money) String() string { return FormatCurrency(m) }

// MarshalJSON encodes the amount as a plain decimal number in reais.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number (reais) or a pt-BR formatted string such
// as "R$ 1.234,56". Unparseable strings decode to zero.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = Zero
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("money: %w", err)
		}
		*m = ParseCurrency(s)
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("money: invalid number %s", data)
	}
	*m = FromDecimal(d)
	return nil
}

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

var numberPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ParseCurrency converts v into Money. Numbers are taken as reais and passed
// through; strings are read in pt-BR convention ("R$ 1.234,56"). Empty or
// unparseable input yields zero.
func ParseCurrency(v any) Money {
	switch x := v.(type) {
	case nil:
		return Zero
	case Money:
		return x
	case int:
		return FromReais(int64(x))
	case int32:
		return FromReais(int64(x))
	case int64:
		return FromReais(x)
	case float32:
		return FromFloat(float64(x))
	case float64:
		return FromFloat(x)
	case decimal.Decimal:
		return FromDecimal(x)
	case string:
		return parseCurrencyString(x)
	case *string:
		if x == nil {
			return Zero
		}
		return parseCurrencyString(*x)
	default:
		return Zero
	}
}

func parseCurrencyString(s string) Money {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero
	}
	negative := false
	s = strings.NewReplacer("R$", "", " ", "", " ", "").Replace(s)
	for strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		if s[0] == '-' {
			negative = !negative
		}
		s = s[1:]
	}
	if s == "" {
		return Zero
	}

	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case strings.Contains(s, "."):
		// a single dot followed by exactly three digits is a thousands separator
		if idx := strings.IndexByte(s, '.'); len(s)-idx-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	if !numberPattern.MatchString(s) {
		return Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero
	}
	m := FromDecimal(d)
	if negative {
		m = -m
	}
	return m
}

// FormatCurrency renders m as "R$ 1.234,56".
func FormatCurrency(m Money) string {
	cents := int64(m)
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	p := message.NewPrinter(language.BrazilianPortuguese)
	return fmt.Sprintf("%sR$ %s,%02d", sign, p.Sprintf("%d", cents/100), cents%100)
}
