package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vitos/turtle_trader/internal/domain"
)

const (
	ModePaper = "paper"
	ModeLive  = "live"
)

type Config struct {
	Mode     string         `yaml:"mode"`
	Exchange ExchangeConfig `yaml:"exchange"`

	Instruments []domain.InstrumentConfig `yaml:"instruments"`
	Turtle      domain.TurtleParams       `yaml:"turtle"`

	// Warmup.Bars is the history requested per symbol at boot; 0 means three
	// window capacities.
	Warmup struct {
		Bars int `yaml:"bars"`
	} `yaml:"warmup"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Polling struct {
		FillsMs int `yaml:"fills_ms"`
	} `yaml:"polling"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

type ExchangeConfig struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	RESTEndpoint string `yaml:"rest_endpoint"`
	WSEndpoint   string `yaml:"ws_endpoint"`
}

// Default returns a paper trading configuration with the classic turtle parameters.
func Default() *Config {
	cfg := &Config{
		Mode:     ModePaper,
		Exchange: ExchangeConfig{Name: "bybit"},
		Turtle:   domain.DefaultTurtleParams(),
	}
	cfg.Storage.Path = "turtle.db"
	cfg.Polling.FillsMs = 1000
	cfg.Logging.Level = "info"
	cfg.Server.Port = 8080
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies .env and
// environment overrides. A missing .env is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
}

func (c *Config) Validate() error {
	if c.Mode != ModePaper && c.Mode != ModeLive {
		return fmt.Errorf("%w: mode must be %q or %q, got %q", domain.ErrInvalidConfig, ModePaper, ModeLive, c.Mode)
	}
	if c.Mode == ModeLive && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("%w: live mode needs api credentials", domain.ErrInvalidConfig)
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("%w: no instruments", domain.ErrInvalidConfig)
	}
	seen := make(map[string]bool)
	for i, inst := range c.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("%w: instrument %d has no symbol", domain.ErrInvalidConfig, i)
		}
		if seen[inst.Symbol] {
			return fmt.Errorf("%w: duplicate instrument %s", domain.ErrInvalidConfig, inst.Symbol)
		}
		seen[inst.Symbol] = true
		if inst.Interval == "" {
			c.Instruments[i].Interval = domain.Interval1h
		} else if _, err := inst.Interval.Duration(); err != nil {
			return err
		}
		if inst.ContractMultiplier < 0 {
			return fmt.Errorf("%w: %s contract_multiplier must be >= 0", domain.ErrInvalidConfig, inst.Symbol)
		}
	}
	if c.Polling.FillsMs <= 0 {
		return fmt.Errorf("%w: polling.fills_ms must be > 0", domain.ErrInvalidConfig)
	}
	if c.Warmup.Bars < 0 || (c.Warmup.Bars > 0 && c.Warmup.Bars < c.Turtle.MinBars()) {
		return fmt.Errorf("%w: warmup.bars must be 0 or >= %d, got %d", domain.ErrInvalidConfig, c.Turtle.MinBars(), c.Warmup.Bars)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port %d", domain.ErrInvalidConfig, c.Server.Port)
	}
	return c.Turtle.Validate()
}

func (c *Config) FillPollInterval() time.Duration {
	return time.Duration(c.Polling.FillsMs) * time.Millisecond
}
