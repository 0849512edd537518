package repository

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Floramigo/internal/domain/models"
)

func TestCSVReadingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sensor_log.csv")
	l := NewCSVReadingLog(path, []string{"soil_moisture", "temperature_c", "light_lux"})
	ctx := context.Background()
	if err := l.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	// a second Init must not duplicate the header
	if err := l.Init(ctx); err != nil {
		t.Fatalf("init again: %v", err)
	}

	ts := time.Date(2025, 6, 1, 8, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	if err := l.Append(ctx, &models.Snapshot{
		Timestamp: ts,
		Readings:  map[string]float64{"soil_moisture": 41.5, "light_lux": 320, "humidity": 55},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "timestamp,soil_moisture,temperature_c,light_lux\n" +
		"2025-06-01T06:00:00Z,41.5,,320\n"
	if string(b) != want {
		t.Fatalf("file =\n%s\nwant\n%s", b, want)
	}
}

func TestCSVReadingLogHeaderOnEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := NewCSVReadingLog(path, []string{"a"})
	if err := l.Append(context.Background(), &models.Snapshot{Timestamp: time.Unix(0, 0), Readings: map[string]float64{"a": 1}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	b, _ := os.ReadFile(path)
	if lines := strings.Split(strings.TrimSpace(string(b)), "\n"); len(lines) != 2 || lines[0] != "timestamp,a" {
		t.Fatalf("unexpected content %q", b)
	}
}

func TestCSVReadingLogBlanksNonFinite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	l := NewCSVReadingLog(path, []string{"a", "b", "c"})
	if err := l.Append(context.Background(), &models.Snapshot{
		Timestamp: time.Unix(0, 0),
		Readings:  map[string]float64{"a": math.NaN(), "b": 2, "c": math.Inf(1)},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	b, _ := os.ReadFile(path)
	if want := "timestamp,a,b,c\n1970-01-01T00:00:00Z,,2,\n"; string(b) != want {
		t.Fatalf("file = %q, want %q", b, want)
	}
}
