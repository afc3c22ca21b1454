package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Engine struct {
		BaseURL      string        `yaml:"base_url"`
		WebSocketURL string        `yaml:"websocket_url"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"engine"`
	Stream struct {
		Transport string `yaml:"transport"` // ws or kafka
		Kafka     struct {
			Brokers      []string `yaml:"brokers"`
			Topic        string   `yaml:"topic"`
			RequestTopic string   `yaml:"request_topic"`
			GroupID      string   `yaml:"group_id"`
			MinBytes     int      `yaml:"min_bytes"`
			MaxBytes     int      `yaml:"max_bytes"`
		} `yaml:"kafka"`
	} `yaml:"stream"`
	History struct {
		Source       string `yaml:"source"` // api or clickhouse
		WindowMonths int    `yaml:"window_months"`
		ClickHouse   struct {
			Host        string        `yaml:"host"`
			Port        int           `yaml:"port"`
			Database    string        `yaml:"database"`
			User        string        `yaml:"user"`
			Password    string        `yaml:"password"`
			Table       string        `yaml:"table"`
			DialTimeout time.Duration `yaml:"dial_timeout"`
			ReadTimeout time.Duration `yaml:"read_timeout"`
		} `yaml:"clickhouse"`
	} `yaml:"history"`
	Board struct {
		AxisTicks        int `yaml:"axis_ticks"`
		SpaghettiCap     int `yaml:"spaghetti_cap"`
		FaultJournalSize int `yaml:"fault_journal_size"`
	} `yaml:"board"`
	Run struct {
		PathCount int `yaml:"path_count"`
		Horizon   int `yaml:"horizon"`
		SpeedMS   int `yaml:"speed_ms"`
	} `yaml:"run"`
	Cache struct {
		Enabled bool          `yaml:"enabled"`
		Backend string        `yaml:"backend"` // memory, redis, or layered
		TTL     time.Duration `yaml:"ttl"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
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

	if v := os.Getenv("ENGINE_BASE_URL"); v != "" {
		c.Engine.BaseURL = v
	}
	if v := os.Getenv("ENGINE_WS_URL"); v != "" {
		c.Engine.WebSocketURL = v
	}
	if v := os.Getenv("STREAM_TRANSPORT"); v != "" {
		c.Stream.Transport = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Stream.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Stream.Kafka.Topic = v
	}
	if v := os.Getenv("HISTORY_SOURCE"); v != "" {
		c.History.Source = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Stream.Transport == "" {
		c.Stream.Transport = "ws"
	}
	if c.Stream.Kafka.RequestTopic == "" && c.Stream.Kafka.Topic != "" {
		c.Stream.Kafka.RequestTopic = c.Stream.Kafka.Topic + ".requests"
	}
	if c.History.Source == "" {
		c.History.Source = "api"
	}
	if c.History.WindowMonths == 0 {
		c.History.WindowMonths = 120
	}
	if c.Board.AxisTicks == 0 {
		c.Board.AxisTicks = 8
	}
	if c.Board.SpaghettiCap == 0 {
		c.Board.SpaghettiCap = 30
	}
	if c.Board.FaultJournalSize == 0 {
		c.Board.FaultJournalSize = 100
	}
	if c.Run.PathCount == 0 {
		c.Run.PathCount = 5000
	}
	if c.Run.Horizon == 0 {
		c.Run.Horizon = 24
	}
	if c.Run.SpeedMS == 0 {
		c.Run.SpeedMS = 120
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 15 * time.Minute
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = 30 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Engine.BaseURL == "" {
		return fmt.Errorf("engine.base_url is required")
	}
	switch c.Stream.Transport {
	case "ws":
		if c.Engine.WebSocketURL == "" {
			return fmt.Errorf("engine.websocket_url is required for ws transport")
		}
	case "kafka":
		if len(c.Stream.Kafka.Brokers) == 0 {
			return fmt.Errorf("stream.kafka.brokers cannot be empty")
		}
		if c.Stream.Kafka.Topic == "" {
			return fmt.Errorf("stream.kafka.topic is required")
		}
	default:
		return fmt.Errorf("stream.transport must be 'ws' or 'kafka', got '%s'", c.Stream.Transport)
	}
	switch c.History.Source {
	case "api":
	case "clickhouse":
		if c.History.ClickHouse.Host == "" {
			return fmt.Errorf("history.clickhouse.host is required")
		}
		if c.History.ClickHouse.Table == "" {
			return fmt.Errorf("history.clickhouse.table is required")
		}
	default:
		return fmt.Errorf("history.source must be 'api' or 'clickhouse', got '%s'", c.History.Source)
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis", "layered":
		if c.Cache.Enabled && c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for %s backend", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}
	return nil
}
