package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Transport names accepted in MAIL_TRANSPORT.
const (
	TransportSMTP     = "smtp"
	TransportDirect   = "direct"
	TransportPostmark = "postmark"
	TransportSpool    = "spool"
)

// TLS modes accepted in MAIL_TLS_MODE.
const (
	TLSModeNone     = "none"
	TLSModeSTARTTLS = "starttls"
	TLSModeTLS      = "tls"
)

// Config is the complete runtime configuration, read from the environment.
type Config struct {
	// Relay connection.
	Host           string        `env:"MAIL_HOST" envDefault:"localhost"`
	Port           int           `env:"MAIL_PORT" envDefault:"25"`
	Username       string        `env:"MAIL_USER"`
	Password       string        `env:"MAIL_PASSWORD"`
	From           string        `env:"MAIL_FROM"`
	TLSMode        string        `env:"MAIL_TLS_MODE" envDefault:"starttls"`
	TLSSkipVerify  bool          `env:"MAIL_TLS_SKIP_VERIFY"`
	ConnectTimeout time.Duration `env:"MAIL_CONNECT_TIMEOUT" envDefault:"60s"`
	Hostname       string        `env:"MAIL_HOSTNAME"`

	Transport            string `env:"MAIL_TRANSPORT" envDefault:"smtp"`
	PostmarkServerToken  string `env:"MAIL_POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"MAIL_POSTMARK_ACCOUNT_TOKEN"`
	SpoolDir             string `env:"MAIL_SPOOL_DIR" envDefault:"./data/spool"`

	Queue QueueConfig
	DKIM  DKIMConfig

	HTTPAddr      string   `env:"MAIL_HTTP_ADDR" envDefault:":8080"`
	AllowNetworks []string `env:"MAIL_SUBMIT_ALLOW_NETWORKS" envSeparator:","`
	Debug         bool     `env:"MAIL_DEBUG"`

	header *string
	footer *string
}

// QueueConfig controls queue sizing and the dispatcher loop.
type QueueConfig struct {
	Capacity      int           `env:"MAIL_QUEUE_CAPACITY" envDefault:"1000"`
	MaxAttempts   int           `env:"MAIL_QUEUE_MAX_ATTEMPTS" envDefault:"0"`
	DrainInterval time.Duration `env:"MAIL_DRAIN_INTERVAL" envDefault:"5s"`
	ErrorDelay    time.Duration `env:"MAIL_ERROR_DELAY" envDefault:"60s"`
}

// DKIMConfig enables DKIM signing when a selector is set.
type DKIMConfig struct {
	Selector   string `env:"MAIL_DKIM_SELECTOR"`
	Domain     string `env:"MAIL_DKIM_DOMAIN"`
	KeyPath    string `env:"MAIL_DKIM_KEY_PATH"`
	PrivateKey string `env:"MAIL_DKIM_PRIVATE_KEY"`
}

// Enabled reports whether any DKIM setting is present.
func (d DKIMConfig) Enabled() bool {
	return d.Selector != "" || d.Domain != "" || d.KeyPath != "" || d.PrivateKey != ""
}

// Header returns the header override; nil means use the default text.
func (c Config) Header() *string { return c.header }

// Footer returns the footer override; nil means use the default text.
func (c Config) Footer() *string { return c.footer }

// Load reads optional .env files (".env" when none are given) and parses
// the environment. Missing files are ignored.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.header = OptionalText("MAIL_HEADER")
	cfg.footer = OptionalText("MAIL_FOOTER")
	if cfg.Hostname == "" {
		cfg.Hostname = Hostname()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad is Load that panics on error, for use during startup.
func MustLoad(files ...string) Config {
	cfg, err := Load(files...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks values that the environment parser cannot.
func (c Config) Validate() error {
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("config: MAIL_QUEUE_CAPACITY must be positive, got %d", c.Queue.Capacity)
	}
	if c.Queue.MaxAttempts < 0 {
		return fmt.Errorf("config: MAIL_QUEUE_MAX_ATTEMPTS must not be negative, got %d", c.Queue.MaxAttempts)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: MAIL_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if !slices.Contains([]string{TLSModeNone, TLSModeSTARTTLS, TLSModeTLS}, c.TLSMode) {
		return fmt.Errorf("config: MAIL_TLS_MODE must be none, starttls or tls, got %q", c.TLSMode)
	}
	switch c.Transport {
	case TransportSMTP, TransportDirect, TransportSpool:
	case TransportPostmark:
		if c.PostmarkServerToken == "" {
			return errors.New("config: MAIL_POSTMARK_SERVER_TOKEN is required for the postmark transport")
		}
	default:
		return fmt.Errorf("config: unknown MAIL_TRANSPORT %q", c.Transport)
	}
	if _, err := c.AllowedNetworks(); err != nil {
		return err
	}
	return nil
}

// OptionalText distinguishes an unset variable (nil) from one set to the
// empty string.
func OptionalText(key string) *string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	return &value
}
