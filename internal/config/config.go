package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/tick_trader/internal/domain"
	"github.com/vitos/tick_trader/internal/infrastructure/deriv"
	"github.com/vitos/tick_trader/internal/usecase"
	"gopkg.in/yaml.v3"
)

type Deriv struct {
	Endpoint             string  `yaml:"endpoint"`
	AppID                string  `yaml:"app_id"`
	Token                string  `yaml:"token"`
	PingIntervalMs       int     `yaml:"ping_interval_ms"`
	MaxReconnectAttempts *int    `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelayMs int     `yaml:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMs  int     `yaml:"reconnect_max_delay_ms"`
	RequestsPerSecond    float64 `yaml:"requests_per_second"`
}

type Bot struct {
	Symbol            string              `yaml:"symbol"`
	Strategy          domain.StrategyKind `yaml:"strategy"`
	Stake             float64             `yaml:"stake"`
	Currency          string              `yaml:"currency"`
	MinStake          float64             `yaml:"min_stake"`
	ApplyReducedStake bool                `yaml:"apply_reduced_stake"`
	HistorySize       int                 `yaml:"history_size"`
	TickBufferSize    int                 `yaml:"tick_buffer_size"`
}

type Logging struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Config struct {
	Deriv   Deriv   `yaml:"deriv"`
	Bot     Bot     `yaml:"bot"`
	Logging Logging `yaml:"logging"`
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
}

// Load reads the YAML file at path and fills unset fields with defaults. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadEnv applies .env and process environment overrides. The token is
// never expected in the YAML file of a shared deployment.
func (c *Config) LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	if v := os.Getenv("DERIV_API_TOKEN"); v != "" {
		c.Deriv.Token = v
	}
	if v := os.Getenv("DERIV_APP_ID"); v != "" {
		c.Deriv.AppID = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Deriv.Endpoint == "" {
		c.Deriv.Endpoint = deriv.DefaultEndpoint
	}
	if c.Deriv.AppID == "" {
		c.Deriv.AppID = deriv.DefaultAppID
	}
	if c.Deriv.PingIntervalMs == 0 {
		c.Deriv.PingIntervalMs = 30000
	}
	// 0 is kept and disables reconnection.
	if c.Deriv.MaxReconnectAttempts == nil {
		attempts := 5
		c.Deriv.MaxReconnectAttempts = &attempts
	}
	if c.Deriv.ReconnectBaseDelayMs == 0 {
		c.Deriv.ReconnectBaseDelayMs = 2000
	}
	if c.Deriv.ReconnectMaxDelayMs == 0 {
		c.Deriv.ReconnectMaxDelayMs = 60000
	}
	if c.Deriv.RequestsPerSecond == 0 {
		c.Deriv.RequestsPerSecond = 5
	}

	if c.Bot.Symbol == "" {
		c.Bot.Symbol = "R_100"
	}
	if c.Bot.Strategy == "" {
		c.Bot.Strategy = domain.StrategyRiseFall
	}
	if c.Bot.Stake == 0 {
		c.Bot.Stake = 1
	}
	if c.Bot.Currency == "" {
		c.Bot.Currency = "USD"
	}
	if c.Bot.MinStake == 0 {
		c.Bot.MinStake = 0.35
	}
	if c.Bot.HistorySize == 0 {
		c.Bot.HistorySize = 50
	}
	if c.Bot.TickBufferSize == 0 {
		c.Bot.TickBufferSize = 100
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "bot.db"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if !c.Bot.Strategy.Valid() {
		errs = append(errs, fmt.Errorf("bot.strategy: %w: %q", domain.ErrUnknownStrategy, c.Bot.Strategy))
	}
	if c.Bot.Stake <= 0 {
		errs = append(errs, fmt.Errorf("bot.stake must be positive, got %v", c.Bot.Stake))
	} else if c.Bot.Stake < c.Bot.MinStake {
		errs = append(errs, fmt.Errorf("bot.stake %v is below bot.min_stake %v", c.Bot.Stake, c.Bot.MinStake))
	}
	if *c.Deriv.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("deriv.max_reconnect_attempts must not be negative"))
	}
	if c.Deriv.ReconnectMaxDelayMs < c.Deriv.ReconnectBaseDelayMs {
		errs = append(errs, fmt.Errorf("deriv.reconnect_max_delay_ms is below deriv.reconnect_base_delay_ms"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

func (c *Config) DerivConfig() deriv.Config {
	return deriv.Config{
		Endpoint:             c.Deriv.Endpoint,
		AppID:                c.Deriv.AppID,
		PingInterval:         time.Duration(c.Deriv.PingIntervalMs) * time.Millisecond,
		MaxReconnectAttempts: *c.Deriv.MaxReconnectAttempts,
		DisableReconnect:     *c.Deriv.MaxReconnectAttempts == 0,
		ReconnectBaseDelay:   time.Duration(c.Deriv.ReconnectBaseDelayMs) * time.Millisecond,
		ReconnectMaxDelay:    time.Duration(c.Deriv.ReconnectMaxDelayMs) * time.Millisecond,
		RequestsPerSecond:    c.Deriv.RequestsPerSecond,
	}
}

func (c *Config) BotConfig() usecase.BotConfig {
	return usecase.BotConfig{
		Symbol:            c.Bot.Symbol,
		Strategy:          c.Bot.Strategy,
		Stake:             c.Bot.Stake,
		Currency:          c.Bot.Currency,
		MinStake:          c.Bot.MinStake,
		ApplyReducedStake: c.Bot.ApplyReducedStake,
		HistorySize:       c.Bot.HistorySize,
		TickBufferSize:    c.Bot.TickBufferSize,
	}
}
