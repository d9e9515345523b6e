// Package config loads application configuration from environment
// variables with an optional YAML overlay. Environment always wins.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Signals   SignalsConfig   `yaml:"signals" envconfig:"SIGNALS"`
	Study     StudyConfig     `yaml:"study" envconfig:"STUDY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	StudyTimeout    time.Duration `yaml:"study_timeout" envconfig:"STUDY_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DatabaseFile  string `yaml:"database_file" envconfig:"DATABASE_FILE"`
	NetworkCSV    string `yaml:"network_csv" envconfig:"NETWORK_CSV"`
	BaselinesFile string `yaml:"baselines_file" envconfig:"BASELINES_FILE"`
	MarketDataDir string `yaml:"market_data_dir" envconfig:"MARKET_DATA_DIR"`
	ExportsDir    string `yaml:"exports_dir" envconfig:"EXPORTS_DIR"`
}

// SignalsConfig tunes shock detection.
type SignalsConfig struct {
	// AbsoluteShockThreshold flags shocks by |value| when a transform's
	// history is too short or flat for a z-score.
	AbsoluteShockThreshold float64 `yaml:"absolute_shock_threshold" envconfig:"ABSOLUTE_SHOCK_THRESHOLD"`
}

// StudyConfig carries the event-study defaults; individual runs may
// override the windows per request.
type StudyConfig struct {
	PreWindowDays      int      `yaml:"pre_window_days" envconfig:"PRE_WINDOW_DAYS"`
	PostWindowDays     int      `yaml:"post_window_days" envconfig:"POST_WINDOW_DAYS"`
	GapDays            int      `yaml:"gap_days" envconfig:"GAP_DAYS"`
	MinEvents          int      `yaml:"min_events" envconfig:"MIN_EVENTS"`
	OverlapBufferDays  int      `yaml:"overlap_buffer_days" envconfig:"OVERLAP_BUFFER_DAYS"`
	SignificanceLevel  float64  `yaml:"significance_level" envconfig:"SIGNIFICANCE_LEVEL"`
	ConfoundEventTypes []string `yaml:"confound_event_types" envconfig:"CONFOUND_EVENT_TYPES"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = fileCfg
	}

	// Environment variables override file values.
	if err := envconfig.Process("TREMOR", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from YAML file, starting from defaults
// so a partial file is valid.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	if c.Study.PreWindowDays <= 0 || c.Study.PostWindowDays <= 0 {
		return fmt.Errorf("study windows must be positive")
	}
	if c.Study.GapDays < 0 {
		return fmt.Errorf("study gap must not be negative")
	}
	if c.Study.MinEvents < 3 {
		return fmt.Errorf("study min_events must be at least 3, got %d", c.Study.MinEvents)
	}
	if c.Study.SignificanceLevel <= 0 || c.Study.SignificanceLevel >= 1 {
		return fmt.Errorf("significance level must be in (0, 1), got %g", c.Study.SignificanceLevel)
	}
	if c.Signals.AbsoluteShockThreshold <= 0 {
		return fmt.Errorf("absolute shock threshold must be positive")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}
	return nil
}

// configFilePath returns the path to the config file
func configFilePath() string {
	if path := os.Getenv("TREMOR_CONFIG"); path != "" {
		return path
	}
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			StudyTimeout:    5 * time.Minute,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/tremor.log",
		},
		Paths: PathsConfig{
			DatabaseFile:  "data/tremor.db",
			NetworkCSV:    "data/granger_edges.csv",
			BaselinesFile: "data/irf_baselines.json",
			MarketDataDir: "data/market",
			ExportsDir:    "exports",
		},
		Signals: SignalsConfig{
			AbsoluteShockThreshold: 1.0,
		},
		Study: StudyConfig{
			PreWindowDays:     5,
			PostWindowDays:    5,
			GapDays:           1,
			MinEvents:         5,
			OverlapBufferDays: 10,
			SignificanceLevel: 0.05,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
