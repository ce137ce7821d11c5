package patient

import (
	"math"
	"sort"

	"github.com/doseledger/doseledger/pkg/calendar"
)

// BMI returns weight / height² (height in cm). Zero when either input is not
// positive.
func BMI(weightKg, heightCm float64) float64 {
	if !(weightKg > 0) || !(heightCm > 0) || math.IsInf(weightKg, 0) || math.IsInf(heightCm, 0) {
		return 0
	}
	m := heightCm / 100
	return weightKg / (m * m)
}

// BMI bands (WHO), labelled for the clinic.
var bmiBands = []struct {
	below float64
	label string
}{
	{18.5, "Abaixo do peso"},
	{25, "Peso normal"},
	{30, "Sobrepeso"},
	{35, "Obesidade grau I"},
	{40, "Obesidade grau II"},
	{math.Inf(1), "Obesidade grau III"},
}

// BMICategory labels bmi. Returns "" for a non-positive bmi.
func BMICategory(bmi float64) string {
	if !(bmi > 0) {
		return ""
	}
	for _, b := range bmiBands {
		if bmi < b.below {
			return b.label
		}
	}
	return bmiBands[len(bmiBands)-1].label
}

// WeightPoint is a weighing, usually taken at injection time.
type WeightPoint struct {
	Date     calendar.Date `json:"date"`
	WeightKg float64       `json:"weight_kg"`
}

// WeightTrend summarizes the weight series.
type WeightTrend struct {
	StartWeightKg   float64        `json:"start_weight_kg"`
	CurrentWeightKg float64        `json:"current_weight_kg"`
	TotalLostKg     float64        `json:"total_lost_kg"`
	PercentLost     float64        `json:"percent_lost"`
	KgPerWeek       float64        `json:"kg_per_week"`
	ProjectedTarget *calendar.Date `json:"projected_target_date,omitempty"`
}

// ProjectWeightTrend fits a least-squares line through points and, when the
// line is heading toward targetKg, projects the date it is reached. It returns
// nil with fewer than two valid points on distinct days.
func ProjectWeightTrend(points []WeightPoint, targetKg float64) *WeightTrend {
	valid := make([]WeightPoint, 0, len(points))
	for _, p := range points {
		if p.WeightKg > 0 && !math.IsInf(p.WeightKg, 0) && !p.Date.IsZero() {
			valid = append(valid, p)
		}
	}
	if len(valid) < 2 {
		return nil
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Date.Before(valid[j].Date) })

	origin := valid[0].Date
	n := float64(len(valid))
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range valid {
		x := float64(origin.DaysUntil(p.Date))
		sumX += x
		sumY += p.WeightKg
		sumXY += x * p.WeightKg
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slopePerDay := (n*sumXY - sumX*sumY) / denom

	first, last := valid[0], valid[len(valid)-1]
	t := &WeightTrend{
		StartWeightKg:   first.WeightKg,
		CurrentWeightKg: last.WeightKg,
		TotalLostKg:     round2(first.WeightKg - last.WeightKg),
		PercentLost:     round2((first.WeightKg - last.WeightKg) / first.WeightKg * 100),
		KgPerWeek:       round2(slopePerDay * 7),
	}

	if targetKg > 0 && slopePerDay < 0 && last.WeightKg > targetKg {
		days := int(math.Ceil((last.WeightKg-targetKg)/-slopePerDay - 1e-9))
		d := last.Date.AddDays(days)
		t.ProjectedTarget = &d
	}
	return t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
