package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Floramigo/internal/services/threshold"
)

const minimal = `
environment: test
monitor:
  thresholds:
    soil_moisture: { low: 35, high: 80, hysteresis: 2 }
    light_lux: { low: 200 }
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tm := c.Timing()
	if tm.SmoothingAlpha != 0.2 || tm.MinDuration != 500*time.Millisecond || tm.Cooldown != 2*time.Second {
		t.Fatalf("unexpected timing defaults: %+v", tm)
	}
	if c.Backend.Type != "csv" || c.Backend.CSVPath == "" {
		t.Fatalf("unexpected backend defaults: %+v", c.Backend)
	}
	if got := strings.Join(c.Backend.Fields, ","); got != "light_lux,soil_moisture" {
		t.Fatalf("fields = %q, want sorted signal names", got)
	}
	soil := c.Monitor.Thresholds["soil_moisture"]
	if soil.Low == nil || *soil.Low != 35 || soil.High == nil || *soil.High != 80 || soil.Hysteresis != 2 {
		t.Fatalf("unexpected soil thresholds: %+v", soil)
	}
	if c.Monitor.Thresholds["light_lux"].High != nil {
		t.Fatalf("light_lux high must stay unset")
	}
}

func TestParseDurations(t *testing.T) {
	c, err := Parse([]byte(minimal + `
  smoothing_alpha: 1
  min_duration: 750ms
  cooldown: 1m
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Monitor.MinDuration != 750*time.Millisecond || c.Monitor.Cooldown != time.Minute || c.Monitor.SmoothingAlpha != 1 {
		t.Fatalf("unexpected monitor section: %+v", c.Monitor)
	}
}

func TestParseKeepsExplicitZeroTiming(t *testing.T) {
	c, err := Parse([]byte(minimal + `
  min_duration: 0s
  cooldown: 0s
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tm := c.Timing()
	if tm.MinDuration != 0 || tm.Cooldown != 0 {
		t.Fatalf("explicit zero durations must survive, got %+v", tm)
	}
	if tm.SmoothingAlpha != 0.2 {
		t.Fatalf("unset alpha must default, got %v", tm.SmoothingAlpha)
	}
}

func TestParseRejectsZeroAlpha(t *testing.T) {
	_, err := Parse([]byte(minimal + `
  smoothing_alpha: 0
`))
	var ce *threshold.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected a ConfigurationError, got %v", err)
	}
	if ce.Field != "SmoothingAlpha" {
		t.Fatalf("field = %q", ce.Field)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no environment": `
monitor:
  thresholds:
    a: { low: 1 }
`,
		"no thresholds": `
environment: test
`,
		"inverted band": `
environment: test
monitor:
  thresholds:
    a: { low: 10, high: 5 }
`,
		"alpha out of range": `
environment: test
monitor:
  smoothing_alpha: 1.5
  thresholds:
    a: { low: 1 }
`,
		"unknown backend": `
environment: test
backend:
  type: sqlite
monitor:
  thresholds:
    a: { low: 1 }
`,
		"topic without brokers": `
environment: test
kafka:
  events_topic: plant-events
monitor:
  thresholds:
    a: { low: 1 }
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CSV_PATH", "/tmp/plants.csv")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Backend.CSVPath != "/tmp/plants.csv" {
		t.Fatalf("csv path = %q", c.Backend.CSVPath)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}

	t.Setenv("BACKEND", "nope")
	if _, err := LoadWithEnv(path); err == nil {
		t.Fatalf("invalid override must be rejected")
	}
}
