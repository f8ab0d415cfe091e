package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"holidaylet/internal/apperr"
)

var columns = map[string]func(*Row) *Cell{
	"start_date":       func(r *Row) *Cell { return &r.StartDate },
	"end_date":         func(r *Row) *Cell { return &r.EndDate },
	"status":           func(r *Row) *Cell { return &r.Status },
	"guest_name":       func(r *Row) *Cell { return &r.GuestName },
	"guest_email":      func(r *Row) *Cell { return &r.GuestEmail },
	"phone":            func(r *Row) *Cell { return &r.Phone },
	"contact":          func(r *Row) *Cell { return &r.Contact },
	"notes":            func(r *Row) *Cell { return &r.Notes },
	"guests_count":     func(r *Row) *Cell { return &r.GuestsCount },
	"children_count":   func(r *Row) *Cell { return &r.ChildrenCount },
	"dogs_count":       func(r *Row) *Cell { return &r.DogsCount },
	"vehicle_reg":      func(r *Row) *Cell { return &r.VehicleReg },
	"price":            func(r *Row) *Cell { return &r.Price },
	"special_requests": func(r *Row) *Cell { return &r.SpecialRequests },
}

// ReadCSV reads rows from a CSV file whose first line names the columns.
// Header names are matched case-insensitively; unknown columns are ignored.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, apperr.Invalid("file", "csv line %d: %v", perr.Line, perr.Err)
		}
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rowsFromTable(records)
}

// ReadXLSX reads rows from the first sheet of a workbook laid out like the
// CSV form. Date cells should be text or formatted as YYYY-MM-DD.
func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Invalid("file", "not a readable xlsx workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Invalid("file", "workbook has no sheets")
	}
	table, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rowsFromTable(table)
}

func rowsFromTable(table [][]string) ([]Row, error) {
	for len(table) > 0 && blank(table[0]) {
		table = table[1:]
	}
	if len(table) == 0 {
		return nil, apperr.Invalid("file", "file has no header row")
	}

	setters := make([]func(*Row) *Cell, len(table[0]))
	seen := make(map[string]bool)
	for i, name := range table[0] {
		key := headerKey(name)
		if set, ok := columns[key]; ok {
			setters[i] = set
			seen[key] = true
		}
	}
	if !seen["start_date"] || !seen["end_date"] {
		return nil, apperr.Invalid("file", "header must include start_date and end_date")
	}

	rows := make([]Row, 0, len(table)-1)
	for i, record := range table[1:] {
		if blank(record) {
			continue
		}
		row := Row{Line: i + 1}
		for i, value := range record {
			if i < len(setters) && setters[i] != nil {
				*setters[i](&row) = Cell(value)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func headerKey(s string) string {
	s = strings.ToLower(cleanString(Cell(s)))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func blank(record []string) bool {
	for _, v := range record {
		if cleanString(Cell(v)) != "" {
			return false
		}
	}
	return true
}
