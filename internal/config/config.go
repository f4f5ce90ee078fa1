package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"chanalysis/internal/flow"
)

// EnvPrefix namespaces every environment variable (CHAN_SERVER_PORT, ...)
const EnvPrefix = "CHAN"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Analysis  AnalysisConfig  `yaml:"analysis" envconfig:"ANALYSIS"`
	Sources   SourcesConfig   `yaml:"sources" envconfig:"SOURCES"`
	Telegram  TelegramConfig  `yaml:"telegram" envconfig:"TELEGRAM"`
	Schedule  ScheduleConfig  `yaml:"schedule" envconfig:"SCHEDULE"`
	Export    ExportConfig    `yaml:"export" envconfig:"EXPORT"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RunTimeout      time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT" validate:"gt=0"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Output      string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// AnalysisConfig contains the knobs of one analysis run
type AnalysisConfig struct {
	Period       int      `yaml:"period" envconfig:"PERIOD" validate:"min=1"`
	MinLiquidity float64  `yaml:"min_liquidity" envconfig:"MIN_LIQUIDITY" validate:"gte=0"`
	TopN         int      `yaml:"top_n" envconfig:"TOP_N" validate:"gte=1"`
	UniverseSize int      `yaml:"universe_size" envconfig:"UNIVERSE_SIZE" validate:"min=1"`
	Symbols      []string `yaml:"symbols" envconfig:"SYMBOLS"`
	PolicyFile   string   `yaml:"policy_file" envconfig:"POLICY_FILE"`
	Concurrency  int      `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"min=1,max=64"`
}

// SourcesConfig contains upstream data source configuration
type SourcesConfig struct {
	Timeout   time.Duration  `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	UserAgent string         `yaml:"user_agent" envconfig:"USER_AGENT"`
	CSVFile   string         `yaml:"csv_file" envconfig:"CSV_FILE"`
	RTI       RTIConfig      `yaml:"rti" envconfig:"RTI"`
	Stockbit  StockbitConfig `yaml:"stockbit" envconfig:"STOCKBIT"`
}

// RTIConfig contains the RTI API, login and foreign table endpoints
type RTIConfig struct {
	Enabled    bool    `yaml:"enabled" envconfig:"ENABLED"`
	APIBase    string  `yaml:"api_base" envconfig:"API_BASE" validate:"omitempty,url"`
	LoginURL   string  `yaml:"login_url" envconfig:"LOGIN_URL" validate:"omitempty,url"`
	ForeignURL string  `yaml:"foreign_url" envconfig:"FOREIGN_URL" validate:"omitempty,url"`
	Email      string  `yaml:"email" envconfig:"EMAIL"`
	Password   string  `yaml:"password" envconfig:"PASSWORD"`
	Scrape     bool    `yaml:"scrape" envconfig:"SCRAPE"`
	RenderJS   bool    `yaml:"render_js" envconfig:"RENDER_JS"`
	RPS        float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
}

// HasCredentials reports whether a login can be attempted
func (c RTIConfig) HasCredentials() bool {
	return c.Email != "" && c.Password != ""
}

// StockbitConfig contains the public chart endpoint
type StockbitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	BaseURL string  `yaml:"base_url" envconfig:"BASE_URL" validate:"omitempty,url"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
}

// TelegramConfig contains bot delivery configuration
type TelegramConfig struct {
	BotToken      string `yaml:"bot_token" envconfig:"BOT_TOKEN"`
	ChatID        string `yaml:"chat_id" envconfig:"CHAT_ID"`
	APIBase       string `yaml:"api_base" envconfig:"API_BASE" validate:"url"`
	Commands      bool   `yaml:"commands" envconfig:"COMMANDS"`
	WatchlistSize int    `yaml:"watchlist_size" envconfig:"WATCHLIST_SIZE" validate:"gte=0"`
}

// Enabled reports whether the bot has enough configuration to send messages
func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// ScheduleConfig contains the daily report times (HH:MM, UTC)
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Morning string `yaml:"morning" envconfig:"MORNING" validate:"omitempty,clock"`
	Evening string `yaml:"evening" envconfig:"EVENING" validate:"omitempty,clock"`
}

// ExportConfig controls report file export
type ExportConfig struct {
	Dir    string `yaml:"dir" envconfig:"DIR"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=csv xlsx both"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Load loads configuration from environment variables and the optional config file.
// Values from the environment take precedence over the file.
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file on cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// configFilePath returns CHAN_CONFIG_FILE or the first config.yaml found
func configFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	for _, location := range []string{"config.yaml", "configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // env vars only
}

// normalize cleans list values that arrive comma separated from the environment
func (c *Config) normalize() {
	symbols := make([]string, 0, len(c.Analysis.Symbols))
	for _, s := range c.Analysis.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	c.Analysis.Symbols = symbols
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clock", isClock)
	return v
}

// isClock validates HH:MM 24h times
func isClock(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}

// FlowConfig returns the explicit pipeline configuration for a run
func (c *Config) FlowConfig(policy flow.Policy) flow.Config {
	return flow.Config{
		Period:         c.Analysis.Period,
		LiquidityFloor: c.Analysis.MinLiquidity,
		TopN:           c.Analysis.TopN,
		Policy:         policy,
	}
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            10000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RunTimeout:      10 * time.Minute,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"*"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/chanalysis.log",
		},
		Analysis: AnalysisConfig{
			Period:       10,
			MinLiquidity: 10_000_000_000,
			TopN:         10,
			UniverseSize: 20,
			Concurrency:  4,
		},
		Sources: SourcesConfig{
			Timeout:   15 * time.Second,
			UserAgent: "chanalysis/1.0",
			RTI: RTIConfig{
				Enabled:    true,
				APIBase:    "https://rtiapi.rti.co.id",
				LoginURL:   "https://access.rti.co.id/auth/login",
				ForeignURL: "https://rti.co.id/stock/foreign",
				RPS:        5,
			},
			Stockbit: StockbitConfig{
				Enabled: true,
				BaseURL: "https://stockbit.com",
				RPS:     5,
			},
		},
		Telegram: TelegramConfig{
			APIBase:       "https://api.telegram.org",
			Commands:      true,
			WatchlistSize: 3,
		},
		Schedule: ScheduleConfig{
			Enabled: true,
			Morning: "01:00",
			Evening: "11:00",
		},
		Export: ExportConfig{
			Format: "csv",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
