package finance

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/doseledger/doseledger/internal/domain/dosing"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

// PriceTier maps doses up to MaxMg (inclusive) to a market box price.
type PriceTier struct {
	MaxMg    float64     `json:"max_mg"`
	BoxPrice money.Money `json:"box_price"`
}

// SavingsParams are the business constants of the market comparison.
type SavingsParams struct {
	ThresholdMg  float64
	Tiers        []PriceTier
	DosesPerBox  int64
	ConsultPrice money.Money
	DaysPerMonth int
}

func DefaultSavingsParams() SavingsParams {
	return SavingsParams{
		ThresholdMg: 2.5,
		Tiers: []PriceTier{
			{MaxMg: 2.5, BoxPrice: money.FromReais(1500)},
			{MaxMg: 5.0, BoxPrice: money.FromReais(1860)},
			{MaxMg: 7.5, BoxPrice: money.FromReais(2600)},
			{MaxMg: math.Inf(1), BoxPrice: money.FromReais(3000)},
		},
		DosesPerBox:  4,
		ConsultPrice: money.FromReais(800),
		DaysPerMonth: 30,
	}
}

// withDefaults fills unset fields so a partially configured value is usable.
func (p SavingsParams) withDefaults() SavingsParams {
	def := DefaultSavingsParams()
	if p.ThresholdMg <= 0 {
		p.ThresholdMg = def.ThresholdMg
	}
	if len(p.Tiers) == 0 {
		p.Tiers = def.Tiers
	}
	if p.DosesPerBox <= 0 {
		p.DosesPerBox = def.DosesPerBox
	}
	if p.ConsultPrice < 0 {
		p.ConsultPrice = def.ConsultPrice
	}
	if p.DaysPerMonth <= 0 {
		p.DaysPerMonth = def.DaysPerMonth
	}
	return p
}

// marketDosePrice returns the per-dose market price for dosageMg. Doses
// above every tier use the last one.
func (p SavingsParams) marketDosePrice(dosageMg float64) money.Money {
	tier := p.Tiers[len(p.Tiers)-1]
	for _, t := range p.Tiers {
		if dosageMg <= t.MaxMg {
			tier = t
			break
		}
	}
	return tier.BoxPrice.DivInt(p.DosesPerBox)
}

// SavingsLine is one comparison-phase dose.
type SavingsLine struct {
	InjectionID uuid.UUID     `json:"injection_id"`
	Date        calendar.Date `json:"date"`
	DosageMg    float64       `json:"dosage_mg"`
	RealValue   money.Money   `json:"real_value"`
	MarketValue money.Money   `json:"market_value"`
}

// SavingsEstimate compares real spend against the assumed market cost of
// the branded drug plus monthly consultations.
type SavingsEstimate struct {
	StartDate          calendar.Date `json:"start_date"`
	MonthsElapsed      int           `json:"months_elapsed"`
	MarketDrugCost     money.Money   `json:"market_drug_cost"`
	MarketConsultsCost money.Money   `json:"market_consults_cost"`
	MarketTotal        money.Money   `json:"market_total"`
	RealTotal          money.Money   `json:"real_total"`
	Savings            money.Money   `json:"savings"`
	Breakdown          []SavingsLine `json:"breakdown"`
}

// Surfaced reports whether the estimate should be shown to the patient.
func (e *SavingsEstimate) Surfaced() bool { return e != nil && e.Savings > 0 }

// EstimateSavings runs the comparison from the first dose at or above the
// threshold. It returns nil when no dose reaches it. Injections without an
// application date cannot be placed in time and are ignored.
func EstimateSavings(injections []*dosing.Injection, today calendar.Date, params SavingsParams) *SavingsEstimate {
	p := params.withDefaults()

	sorted := make([]*dosing.Injection, 0, len(injections))
	for _, inj := range injections {
		if inj != nil && !inj.AppliedAt.IsZero() {
			sorted = append(sorted, inj)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AppliedAt.Before(sorted[j].AppliedAt) })

	start := -1
	for i, inj := range sorted {
		if inj.DosageMg() >= p.ThresholdMg {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	phase := sorted[start:]

	est := &SavingsEstimate{
		StartDate: phase[0].AppliedAt,
		Breakdown: make([]SavingsLine, 0, len(phase)),
	}
	for _, inj := range phase {
		mg := inj.DosageMg()
		market := p.marketDosePrice(mg)
		est.RealTotal += inj.DoseValue
		est.MarketDrugCost += market
		est.Breakdown = append(est.Breakdown, SavingsLine{
			InjectionID: inj.ID,
			Date:        inj.AppliedAt,
			DosageMg:    mg,
			RealValue:   inj.DoseValue,
			MarketValue: market,
		})
	}

	days := est.StartDate.DaysUntil(today)
	months := int(math.Ceil(float64(days) / float64(p.DaysPerMonth)))
	if months < 1 {
		months = 1
	}
	est.MonthsElapsed = months
	est.MarketConsultsCost = p.ConsultPrice * money.Money(months)
	est.MarketTotal = est.MarketDrugCost + est.MarketConsultsCost
	est.Savings = est.MarketTotal - est.RealTotal
	return est
}
