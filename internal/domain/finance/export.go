package finance

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Resumo"
	currencyFmt  = `"R$" #,##0.00`
)

var (
	summaryHeadings = []interface{}{"Mês", "Receita", "Pendente", "Lançamentos"}
	recordHeadings  = []interface{}{"Vencimento", "Paciente", "Descrição", "Status", "Valor"}
)

// ExportMonthlyXLSX writes groups as a workbook: a summary sheet followed
// by one sheet per month in the order given.
func ExportMonthlyXLSX(groups []MonthGroup, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	fmtStr := currencyFmt
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &fmtStr})
	if err != nil {
		return fmt.Errorf("currency style: %w", err)
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	if err := writeRow(f, summarySheet, 1, summaryHeadings); err != nil {
		return err
	}
	_ = f.SetCellStyle(summarySheet, "A1", "D1", boldStyle)
	for i, g := range groups {
		row := i + 2
		if err := writeRow(f, summarySheet, row, []interface{}{
			g.Title, g.Revenue.Float64(), g.Pending.Float64(), len(g.Records),
		}); err != nil {
			return err
		}
		_ = f.SetCellStyle(summarySheet, cell(2, row), cell(3, row), moneyStyle)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "B", "D", 16)

	for _, g := range groups {
		name := sheetName(g)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeRow(f, name, 1, recordHeadings); err != nil {
			return err
		}
		_ = f.SetCellStyle(name, "A1", "E1", boldStyle)
		for i, r := range g.Records {
			row := i + 2
			patientName := ""
			if r.Patient != nil {
				patientName = r.Patient.Name
			}
			if err := writeRow(f, name, row, []interface{}{
				shortDate(r.DueDate), patientName, r.Description, string(r.Status.Stored()), r.Amount.Float64(),
			}); err != nil {
				return err
			}
			_ = f.SetCellStyle(name, cell(5, row), cell(5, row), moneyStyle)
		}
		_ = f.SetColWidth(name, "A", "B", 20)
		_ = f.SetColWidth(name, "C", "C", 40)
		_ = f.SetColWidth(name, "D", "E", 16)
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func sheetName(g MonthGroup) string {
	if g.Key == undatedKey {
		return "Sem vencimento"
	}
	return g.Key
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	if err := f.SetSheetRow(sheet, cell(1, row), &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
