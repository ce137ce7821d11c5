package finance

import (
	"sort"

	"github.com/doseledger/doseledger/pkg/money"
)

// undatedKey groups records without a due date; it sorts after every month.
const undatedKey = ""

// MonthGroup is one month of the transaction browser. Pending here is the
// plain sum of non-paid records in the month, not the accrual figure of
// the ledger.
type MonthGroup struct {
	Key     string      `json:"key"`
	Title   string      `json:"title"`
	Records []*Record   `json:"records"`
	Revenue money.Money `json:"revenue"`
	Pending money.Money `json:"pending"`
}

// GroupByMonth buckets records by the month of their due date, newest
// month first. Records inside a month are ordered by due date descending.
func GroupByMonth(records []*Record) []MonthGroup {
	idx := make(map[string]int)
	var groups []MonthGroup
	for _, r := range records {
		key, title := undatedKey, "Sem vencimento"
		if !r.DueDate.IsZero() {
			key, title = r.DueDate.MonthKey(), monthTitle(r.DueDate)
		}
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, MonthGroup{Key: key, Title: title})
		}
		g := &groups[i]
		g.Records = append(g.Records, r)
		if r.Status == StatusPaid {
			g.Revenue += r.Amount
		} else {
			g.Pending += r.Amount
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if a == undatedKey || b == undatedKey {
			return b == undatedKey && a != undatedKey
		}
		return a > b
	})
	for _, g := range groups {
		sort.SliceStable(g.Records, func(i, j int) bool {
			return g.Records[i].DueDate.After(g.Records[j].DueDate)
		})
	}
	return groups
}
