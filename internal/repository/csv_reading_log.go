package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"Floramigo/internal/domain/models"
	domrepo "Floramigo/internal/domain/repository"
)

// CSVReadingLog appends one row per snapshot to a CSV file. The header is
// "timestamp" followed by the configured fields, written only when the file
// is missing or empty. Missing and non-finite readings become empty cells.
type CSVReadingLog struct {
	mu     sync.Mutex
	path   string
	fields []string
}

func NewCSVReadingLog(path string, fields []string) *CSVReadingLog {
	return &CSVReadingLog{path: path, fields: append([]string(nil), fields...)}
}

var _ domrepo.ReadingLog = (*CSVReadingLog)(nil)

// Init creates the parent directory and the header row.
func (l *CSVReadingLog) Init(ctx context.Context) error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("csv log dir: %w", err)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.open()
	if err != nil {
		return err
	}
	return f.Close()
}

func (l *CSVReadingLog) Append(ctx context.Context, s *models.Snapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	row := make([]string, 0, len(l.fields)+1)
	row = append(row, s.Timestamp.UTC().Format(time.RFC3339Nano))
	for _, name := range l.fields {
		if v, ok := s.Readings[name]; ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			row = append(row, "")
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	return nil
}

// open returns the file in append mode, writing the header when empty.
func (l *CSVReadingLog) open() (*os.File, error) {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv open: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv stat: %w", err)
	}
	if st.Size() == 0 {
		w := csv.NewWriter(f)
		_ = w.Write(append([]string{"timestamp"}, l.fields...))
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv header: %w", err)
		}
	}
	return f, nil
}

func (l *CSVReadingLog) Close() error { return nil }
