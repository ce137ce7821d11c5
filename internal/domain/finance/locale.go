package finance

import (
	"fmt"
	"time"

	"github.com/doseledger/doseledger/pkg/calendar"
)

var monthAbbrev = [...]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

func monthLabel(m time.Month) string { return monthAbbrev[m-1] }

// monthTitle renders e.g. "Fevereiro de 2024".
func monthTitle(d calendar.Date) string {
	return fmt.Sprintf("%s de %d", monthNames[d.Month-1], d.Year)
}

// shortDate renders dd/mm/yyyy.
func shortDate(d calendar.Date) string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}
