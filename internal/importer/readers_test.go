package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"holidaylet/internal/apperr"
)

func TestReadCSV(t *testing.T) {
	input := "Start Date,End-Date,Status,Guest Name,Price,Ignored\n" +
		"2024-03-01,2024-03-05,provisional,Ann,\"£1,200\",x\n" +
		",,,,,\n" +
		"2024-04-01,2024-04-03\n"

	rows, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, Cell("2024-03-01"), rows[0].StartDate)
	assert.Equal(t, Cell("provisional"), rows[0].Status)
	assert.Equal(t, Cell("Ann"), rows[0].GuestName)
	assert.Equal(t, Cell("£1,200"), rows[0].Price)
	assert.Equal(t, Cell("2024-04-03"), rows[1].EndDate)
	assert.Empty(t, rows[1].GuestName)

	b, err := rows[0].toBooking()
	require.NoError(t, err)
	assert.Equal(t, 1200.0, *b.Price)

	// the blank second data row still counts
	assert.Equal(t, 1, rows[0].Line)
	assert.Equal(t, 3, rows[1].Line)
}

func TestReadCSV_HeaderErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.True(t, apperr.IsValidation(err))

	_, err = ReadCSV(strings.NewReader("guest_name,price\nAnn,10\n"))
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Contains(t, err.Error(), "start_date and end_date")

	_, err = ReadCSV(strings.NewReader("start_date,end_date\n\"2024-01-01,2024-01-02\n"))
	assert.True(t, apperr.IsValidation(err))
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"start_date", "end_date", "guest_name", "dogs_count"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"2024-06-07", "2024-06-10", "Bea", "2"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"2024-06-14", "2024-06-21", "Cal", ""}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	rows, err := ReadXLSX(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Cell("Bea"), rows[0].GuestName)
	assert.Equal(t, Cell("2"), rows[0].DogsCount)
	assert.Equal(t, Cell("2024-06-21"), rows[1].EndDate)
	assert.Equal(t, []int{1, 3}, []int{rows[0].Line, rows[1].Line})
}

func TestReadXLSX_NotAWorkbook(t *testing.T) {
	_, err := ReadXLSX(strings.NewReader("start_date,end_date\n"))
	assert.True(t, apperr.IsValidation(err))
}
