package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"Floramigo/internal/domain/models"
	domrepo "Floramigo/internal/domain/repository"
	pkgch "Floramigo/pkg/clickhouse"
	applogger "Floramigo/pkg/logger"
)

// CHReadingLog stores snapshots in a long-format ClickHouse table, one row
// per (ts, signal).
type CHReadingLog struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
}

func NewCHReadingLog(client *pkgch.Client, database, table string) *CHReadingLog {
	return &CHReadingLog{client: client, db: client.DB(), table: database + "." + table}
}

var _ domrepo.ReadingLog = (*CHReadingLog)(nil)

// SetLogger injects a structured logger.
func (s *CHReadingLog) SetLogger(l *applogger.Logger) { s.l = l }

// ReadingsSchema returns the DDL for the readings table.
func ReadingsSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    ts     DateTime64(3, 'UTC'),
    signal LowCardinality(String),
    value  Float64
) ENGINE = MergeTree
ORDER BY (signal, ts)`, database, table),
	}
}

func (s *CHReadingLog) Init(ctx context.Context) error {
	return nil // schema is created by the DI provider
}

func (s *CHReadingLog) Append(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if len(snap.Readings) == 0 {
		return nil
	}
	names := make([]string, 0, len(snap.Readings))
	for name := range snap.Readings {
		names = append(names, name)
	}
	sort.Strings(names)

	// clickhouse-go batches every Exec of a prepared insert into one block
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (ts, signal, value)", s.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := snap.Timestamp.UTC()
	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, ts, name, snap.Readings[name]); err != nil {
			_ = tx.Rollback()
			s.logError("clickhouse append exec error", name, err)
			return fmt.Errorf("insert reading %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.logError("clickhouse append commit error", "", err)
		return fmt.Errorf("commit readings: %w", err)
	}
	return nil
}

func (s *CHReadingLog) logError(msg, signal string, err error) {
	if s.l == nil {
		return
	}
	s.l.Error(msg,
		applogger.String("table", s.table),
		applogger.String("signal", signal),
		applogger.Error(err),
	)
}

func (s *CHReadingLog) Close() error {
	return s.client.Close()
}
