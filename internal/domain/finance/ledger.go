package finance

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/doseledger/doseledger/internal/domain/dosing"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

// costFallbackRatio prices a dose whose medication cannot be costed.
var costFallbackRatio = decimal.NewFromFloat(0.5)

// PatientBalance accumulates what was applied to a patient against what
// they paid for.
type PatientBalance struct {
	Realized money.Money `json:"realized"`
	Paid     money.Money `json:"paid"`
}

// Outstanding is the accrual pending amount: never negative, so credit
// from overpayment does not offset other patients.
func (b PatientBalance) Outstanding() money.Money { return (b.Realized - b.Paid).Positive() }

// BalanceRow is a PatientBalance with its patient, for ranked listings.
type BalanceRow struct {
	PatientID   uuid.UUID   `json:"patient_id"`
	Name        string      `json:"name,omitempty"`
	Realized    money.Money `json:"realized"`
	Paid        money.Money `json:"paid"`
	Outstanding money.Money `json:"outstanding"`
}

// Ledger is the dashboard snapshot computed from the full set of injections
// and financial records as of one day.
type Ledger struct {
	AsOf       calendar.Date                `json:"as_of"`
	PerPatient map[uuid.UUID]PatientBalance `json:"per_patient"`

	TotalRealizedValue money.Money `json:"total_realized_value"`
	TotalRealizedCost  money.Money `json:"total_realized_cost"`
	EstimatedProfit    money.Money `json:"estimated_profit"`
	// TotalPending is accrual based: applied minus paid per patient.
	TotalPending money.Money `json:"total_pending"`
	// PendingRecords is the cash view: open records not yet overdue.
	PendingRecords money.Money `json:"pending_records"`
	TotalOverdue   money.Money `json:"total_overdue"`
	TotalRevenue   money.Money `json:"total_revenue"`

	RevenueSeries   []ChartPoint `json:"revenue_series"`
	StatusBreakdown []ChartPoint `json:"status_breakdown"`
}

// ComputeLedger reduces injections and records into a Ledger. Nil elements
// are skipped. It does not mutate its inputs and gives the same result for the same inputs in any
// order.
func ComputeLedger(injections []*dosing.Injection, records []*Record, today calendar.Date) *Ledger {
	l := &Ledger{
		AsOf:       today,
		PerPatient: make(map[uuid.UUID]PatientBalance),
	}
	revenueByMonth := make(map[string]money.Money)

	for _, r := range records {
		if r == nil {
			continue
		}
		switch r.Classify(today) {
		case StatusPaid:
			l.TotalRevenue += r.Amount
			if !r.DueDate.IsZero() {
				revenueByMonth[r.DueDate.MonthKey()] += r.Amount
			}
		case StatusOverdue:
			l.TotalOverdue += r.Amount
		default:
			l.PendingRecords += r.Amount
		}
	}

	for _, inj := range injections {
		if inj == nil {
			continue
		}
		l.TotalRealizedValue += inj.DoseValue
		l.TotalRealizedCost += doseCost(inj)

		id, ok := inj.ResolvedPatientID()
		if !ok {
			continue
		}
		b := l.PerPatient[id]
		b.Realized += inj.DoseValue
		l.PerPatient[id] = b
	}

	for _, r := range records {
		if r == nil || r.Status != StatusPaid {
			continue
		}
		id, ok := r.ResolvedPatientID()
		if !ok {
			continue
		}
		b := l.PerPatient[id]
		b.Paid += r.Amount
		l.PerPatient[id] = b
	}

	l.EstimatedProfit = l.TotalRealizedValue - l.TotalRealizedCost
	for _, b := range l.PerPatient {
		l.TotalPending += b.Outstanding()
	}

	l.RevenueSeries = revenueSeries(revenueByMonth, today)
	l.StatusBreakdown = statusBreakdown(l.TotalRevenue, l.TotalPending, l.TotalOverdue)
	return l
}

// doseCost prices one injection, falling back to half its charged value
// when the medication data cannot support a cost.
func doseCost(inj *dosing.Injection) money.Money {
	c := inj.Cost()
	if c.Reliable {
		return c.Cost
	}
	return inj.DoseValue.Mul(costFallbackRatio)
}

// Debtors lists patients with an outstanding balance, largest first.
// names is optional and only used for display.
func (l *Ledger) Debtors(names map[uuid.UUID]string) []BalanceRow {
	rows := make([]BalanceRow, 0, len(l.PerPatient))
	for id, b := range l.PerPatient {
		out := b.Outstanding()
		if out <= 0 {
			continue
		}
		rows = append(rows, BalanceRow{
			PatientID:   id,
			Name:        names[id],
			Realized:    b.Realized,
			Paid:        b.Paid,
			Outstanding: out,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Outstanding != rows[j].Outstanding {
			return rows[i].Outstanding > rows[j].Outstanding
		}
		return rows[i].PatientID.String() < rows[j].PatientID.String()
	})
	return rows
}
