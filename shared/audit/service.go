// Package audit exports the booking tables to an Excel workbook, on demand
// and as a monthly report to the owner.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service builds workbooks from the exported tables.
type Service struct {
	exporter TableExporter
	writer   func() ExcelWriter // factory for creating new Excel writers
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates an audit service. notifier may be nil, in which case
// only on-demand exports are available.
func NewService(exporter TableExporter, writerFactory func() ExcelWriter, notifier Notifier, logger *zerolog.Logger) *Service {
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}
	return &Service{
		exporter: exporter,
		writer:   writerFactory,
		notifier: notifier,
		logger:   logger.With().Str("component", "audit").Logger(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Export writes one sheet per table to w.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}

	excel := s.writer()
	defer excel.Close()

	for _, tableName := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, tableName)
		if err != nil {
			return fmt.Errorf("get %s data: %w", tableName, err)
		}
		if err := excel.AddSheet(tableName); err != nil {
			return err
		}
		if err := excel.WriteHeader(columns); err != nil {
			return fmt.Errorf("write %s header: %w", tableName, err)
		}
		for _, row := range data {
			rowData := make([]any, len(columns))
			for i, col := range columns {
				rowData[i] = row[col]
			}
			if err := excel.WriteRow(rowData); err != nil {
				return fmt.Errorf("write %s row: %w", tableName, err)
			}
		}
		s.logger.Debug().Str("table", tableName).Int("rows", len(data)).Msg("Exported table")
	}

	if err := excel.Save(w); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}
	return nil
}

// Start sends a report to the owner shortly after midnight on the first of
// every month. It does nothing without a notifier.
func (s *Service) Start() {
	if s.notifier == nil {
		s.logger.Info().Msg("Monthly report disabled")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
}

// Stop waits for the scheduler to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := nextFirstOfMonth(s.now())
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()
	s.logger.Info().Time("next_run", nextRun).Msg("Monthly report scheduled")

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := s.SendReport(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Monthly report failed")
			}
			cancel()

			nextRun = nextFirstOfMonth(s.now())
			timer.Reset(time.Until(nextRun))
		}
	}
}

// SendReport exports the tables and sends the workbook to the owner.
func (s *Service) SendReport(ctx context.Context) error {
	if s.notifier == nil {
		return fmt.Errorf("no notifier configured")
	}

	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		return err
	}

	// The report covers the month that just ended.
	filename := GenerateFilename(s.now().AddDate(0, 0, -1))
	if err := s.notifier.SendDocument(ctx, filename, &buf, "Monthly bookings report"); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	s.logger.Info().Str("filename", filename).Msg("Monthly report sent")
	return nil
}

func nextFirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}
