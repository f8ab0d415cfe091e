package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	// GetTableNames returns the tables to export, in sheet order.
	GetTableNames(ctx context.Context) ([]string, error)

	// GetTableData returns rows for a table as maps, plus the column order.
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	Close() error
}

// Notifier delivers a finished report to the owner.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// GenerateFilename names the workbook for the month containing t, like
// "holidaylet_2026-01.xlsx".
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("holidaylet_%04d-%02d.xlsx", t.Year(), int(t.Month()))
}
