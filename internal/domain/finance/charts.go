package finance

import (
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

// revenueMonths is the length of the trailing revenue series.
const revenueMonths = 6

// ChartPoint is one bar or slice of a dashboard chart.
type ChartPoint struct {
	Key   string      `json:"key,omitempty"`
	Label string      `json:"label"`
	Value money.Money `json:"value"`
	Color string      `json:"color,omitempty"`
}

var statusColors = map[Status]string{
	StatusPaid:    "#10b981",
	StatusPending: "#f59e0b",
	StatusOverdue: "#ef4444",
}

// revenueSeries buckets paid amounts into the six months ending with the
// month of today. Months without revenue are present with zero.
func revenueSeries(byMonth map[string]money.Money, today calendar.Date) []ChartPoint {
	out := make([]ChartPoint, 0, revenueMonths)
	start := today.MonthStart().AddMonths(-(revenueMonths - 1))
	for i := 0; i < revenueMonths; i++ {
		m := start.AddMonths(i)
		out = append(out, ChartPoint{
			Key:   m.MonthKey(),
			Label: monthLabel(m.Month),
			Value: byMonth[m.MonthKey()],
		})
	}
	return out
}

func statusBreakdown(paid, pending, overdue money.Money) []ChartPoint {
	return []ChartPoint{
		{Label: string(StatusPaid), Value: paid, Color: statusColors[StatusPaid]},
		{Label: string(StatusPending), Value: pending, Color: statusColors[StatusPending]},
		{Label: string(StatusOverdue), Value: overdue, Color: statusColors[StatusOverdue]},
	}
}
