package finance

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/doseledger/doseledger/internal/domain/patient"
	"github.com/doseledger/doseledger/pkg/calendar"
)

func TestExportMonthlyXLSX(t *testing.T) {
	pid := uuid.New()
	paid := record(pid, 150, StatusPaid, calendar.New(2024, time.February, 20))
	paid.Patient = &patient.Ref{ID: pid, Name: "Ana Souza"}
	paid.Description = "Aplicação 5mg"
	recs := []*Record{
		paid,
		record(pid, 80, StatusOverdue, calendar.New(2024, time.January, 5)),
	}

	var buf bytes.Buffer
	require.NoError(t, ExportMonthlyXLSX(GroupByMonth(recs), &buf))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Resumo", "2024-02", "2024-01"}, f.GetSheetList())

	title, err := f.GetCellValue("Resumo", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Fevereiro de 2024", title)
	revenue, err := f.GetCellValue("Resumo", "B2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "150", revenue)

	row, err := f.GetRows("2024-02")
	require.NoError(t, err)
	require.Len(t, row, 2)
	assert.Equal(t, []string{"Vencimento", "Paciente", "Descrição", "Status", "Valor"}, row[0])
	assert.Equal(t, "20/02/2024", row[1][0])
	assert.Equal(t, "Ana Souza", row[1][1])
	assert.Equal(t, "Pago", row[1][3])

	status, err := f.GetCellValue("2024-01", "D2")
	require.NoError(t, err)
	assert.Equal(t, "Pendente", status)
}

func TestExportMonthlyXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportMonthlyXLSX(nil, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Resumo"}, f.GetSheetList())
}
