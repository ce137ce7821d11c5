package dosing

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/doseledger/doseledger/pkg/money"
)

var dosageNumber = regexp.MustCompile(`-?\d*\.?\d+`)

// ParseDosage extracts the first number from a dosage string. Unit
// suffixes are ignored and a decimal comma is accepted. Unparseable or
// negative input yields 0.
func ParseDosage(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	m := dosageNumber.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || !(v > 0) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// DoseCost is the drug cost of one administration. Reliable is false when
// the medication data cannot price the dose; callers then apply their own
// estimate.
type DoseCost struct {
	Cost      money.Money     `json:"cost"`
	CostPerMg decimal.Decimal `json:"cost_per_mg"`
	Reliable  bool            `json:"reliable"`
}

func finitePositive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}

// CostOfDose amortizes the vial cost over its content:
// cost = costPerVial / totalContentMg × dosageMg, rounded to cents.
// It never divides by zero and never returns a negative cost.
func CostOfDose(med *Medication, dosageMg float64) DoseCost {
	if med == nil || !finitePositive(med.TotalContentMg) || !med.CostPerVial.IsPositive() {
		return DoseCost{CostPerMg: decimal.Zero}
	}
	content := decimal.NewFromFloat(med.TotalContentMg)
	perMg := med.CostPerVial.Decimal().Div(content)
	if !finitePositive(dosageMg) {
		return DoseCost{CostPerMg: perMg}
	}
	cost := med.CostPerVial.Decimal().Mul(decimal.NewFromFloat(dosageMg)).Div(content)
	return DoseCost{
		Cost:      money.FromDecimal(cost),
		CostPerMg: perMg,
		Reliable:  true,
	}
}

// SuggestedDoseValue is the charge pre-filled for a new injection:
// salePricePerMg × dosageMg.
func (m *Medication) SuggestedDoseValue(dosageMg float64) money.Money {
	if m == nil || !finitePositive(dosageMg) || !m.SalePricePerMg.IsPositive() {
		return money.Zero
	}
	return m.SalePricePerMg.Mul(decimal.NewFromFloat(dosageMg))
}

// DoseVolumeML converts a dosage into the volume to draw, rounded to
// hundredths of a millilitre. Zero when the concentration is unknown.
func (m *Medication) DoseVolumeML(dosageMg float64) float64 {
	if m == nil || !finitePositive(m.ConcentrationMgPerMl) || !finitePositive(dosageMg) {
		return 0
	}
	return math.Round(dosageMg/m.ConcentrationMgPerMl*100) / 100
}
