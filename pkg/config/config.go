package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"Floramigo/internal/services/threshold"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		IngestRPS       float64       `yaml:"ingest_rps"`
		IngestBurst     float64       `yaml:"ingest_burst"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Monitor struct {
		// smoothing_alpha, min_duration and cooldown; defaults come from
		// the struct tags and an explicit 0 is kept for validation.
		threshold.TimingConfig `yaml:",inline"`

		Thresholds map[string]threshold.ThresholdConfig `yaml:"thresholds"`
	} `yaml:"monitor"`
	Backend struct {
		Type     string   `yaml:"type"`
		CSVPath  string   `yaml:"csv_path"`
		Fields   []string `yaml:"fields"`
		Database string   `yaml:"database"`
		Table    string   `yaml:"table"`
	} `yaml:"backend"`
	SensorHub struct {
		URL            string        `yaml:"url"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"sensor_hub"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		ReadingsTopic string   `yaml:"readings_topic"`
		EventsTopic   string   `yaml:"events_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		AsyncInsert  bool          `yaml:"async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		EventTTL time.Duration `yaml:"event_ttl"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills unset values and validates the result.
// Tagged defaults are applied before decoding so that values present in
// the document, zero included, always win.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("CSV_PATH"); v != "" {
		c.Backend.CSVPath = v
	}
	if v := os.Getenv("SENSOR_HUB_URL"); v != "" {
		c.SensorHub.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	// overrides can break what Load validated
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "csv"
	}
	if c.Backend.CSVPath == "" {
		c.Backend.CSVPath = "sensor_log.csv"
	}
	if c.Backend.Table == "" {
		c.Backend.Table = "sensor_readings"
	}
	if len(c.Backend.Fields) == 0 {
		c.Backend.Fields = c.SignalNames()
	}
	if c.SensorHub.PollInterval == 0 {
		c.SensorHub.PollInterval = time.Second
	}
	if c.SensorHub.ReconnectDelay == 0 {
		c.SensorHub.ReconnectDelay = 5 * time.Second
	}
	if c.SensorHub.PingInterval == 0 {
		c.SensorHub.PingInterval = 30 * time.Second
	}
	if c.Redis.EventTTL == 0 {
		c.Redis.EventTTL = 24 * time.Hour
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Monitor.Thresholds) == 0 {
		return fmt.Errorf("monitor.thresholds cannot be empty")
	}
	for name, th := range c.Monitor.Thresholds {
		if err := th.Validate(name); err != nil {
			return err
		}
	}
	if err := c.Timing().Validate(); err != nil {
		return err
	}
	switch c.Backend.Type {
	case "csv":
		if c.Backend.CSVPath == "" {
			return fmt.Errorf("backend.csv_path is required for csv backend")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for clickhouse backend")
		}
	default:
		return fmt.Errorf("backend.type must be 'csv' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if (c.Kafka.ReadingsTopic != "" || c.Kafka.EventsTopic != "") && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when a kafka topic is set")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}

// Timing converts the monitor section into engine timing parameters.
func (c *Config) Timing() threshold.TimingConfig {
	return c.Monitor.TimingConfig
}

// SignalNames returns the configured signal names in sorted order.
func (c *Config) SignalNames() []string {
	names := make([]string, 0, len(c.Monitor.Thresholds))
	for name := range c.Monitor.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
