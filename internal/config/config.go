// Package config loads aevoctl settings with precedence: defaults, YAML, then
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/pkg/env"
)

const (
	// DefaultPath is read when no path is given.
	DefaultPath = "config/aevoctl.yaml"

	defaultServiceName = "aevoctl"
	defaultInboxSize   = 1024
)

// Credentials are the exchange secrets. Values usually come from ${VAR}
// references or AEVO_* environment variables rather than the file itself.
type Credentials struct {
	SigningKey    string `yaml:"signingKey"`
	WalletAddress string `yaml:"walletAddress"`
	APIKey        string `yaml:"apiKey"`
	APISecret     string `yaml:"apiSecret"`
}

// Endpoints override the environment's REST and streaming URLs.
type Endpoints struct {
	REST string `yaml:"rest"`
	WS   string `yaml:"ws"`
}

// StreamConfig controls the streaming session.
type StreamConfig struct {
	Channels            []string      `yaml:"channels"`
	InboxSize           int           `yaml:"inboxSize"`
	ReconnectMaxElapsed time.Duration `yaml:"reconnectMaxElapsed"`
}

// RESTConfig controls the REST client.
type RESTConfig struct {
	RateLimit float64       `yaml:"rateLimit"`
	Burst     int           `yaml:"burst"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig configures OTLP exporters. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Config is the aevoctl configuration tree.
type Config struct {
	Environment string          `yaml:"environment"`
	Credentials Credentials     `yaml:"credentials"`
	Endpoints   Endpoints       `yaml:"endpoints"`
	Stream      StreamConfig    `yaml:"stream"`
	REST        RESTConfig      `yaml:"rest"`
	Logging     LoggingConfig   `yaml:"logging"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Environment: string(env.Staging),
		Credentials: Credentials{},
		Endpoints:   Endpoints{},
		Stream: StreamConfig{
			Channels:            nil,
			InboxSize:           defaultInboxSize,
			ReconnectMaxElapsed: 2 * time.Minute,
		},
		REST: RESTConfig{
			RateLimit: 20,
			Burst:     20,
			Timeout:   15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  defaultServiceName,
		},
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errs.New("config.dotenv", errs.CodeConfig,
				errs.WithMessage("load "+path), errs.WithCause(err))
		}
	}
	return nil
}

// Load reads the configuration at path, falling back to DefaultPath. The
// returned flag reports whether a file was found; without one the defaults
// and environment overrides apply.
func Load(path string) (Config, bool, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("AEVO_CONFIG"))
	}
	if path == "" {
		path = DefaultPath
	}

	loaded, err := cfg.loadYAML(path)
	if err != nil {
		return Config{}, false, err
	}
	cfg.loadEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, loaded, nil
}

// Parse decodes YAML content, expanding ${VAR} references first.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := cfg.merge(raw); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) (bool, error) {
	raw, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- operator supplied path.
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errs.New("config.load", errs.CodeConfig,
			errs.WithMessage("read "+path), errs.WithCause(err))
	}
	if err := c.merge(raw); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Config) merge(raw []byte) error {
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return errs.New("config.parse", errs.CodeConfig,
			errs.WithMessage("unmarshal yaml"), errs.WithCause(err))
	}
	return nil
}

// loadEnv applies AEVO_* and OTEL_* overrides.
func (c *Config) loadEnv() {
	override := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override("AEVO_ENV", &c.Environment)
	override("AEVO_SIGNING_KEY", &c.Credentials.SigningKey)
	override("AEVO_WALLET_ADDRESS", &c.Credentials.WalletAddress)
	override("AEVO_API_KEY", &c.Credentials.APIKey)
	override("AEVO_API_SECRET", &c.Credentials.APISecret)
	override("AEVO_REST_URL", &c.Endpoints.REST)
	override("AEVO_WS_URL", &c.Endpoints.WS)
	override("AEVO_LOG_LEVEL", &c.Logging.Level)
	override("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	override("OTEL_SERVICE_NAME", &c.Telemetry.ServiceName)
}

// Validate normalises and checks the configuration.
func (c *Config) Validate() error {
	invalid := func(field, msg string) error {
		return errs.New("config.validate", errs.CodeConfig,
			errs.WithMessage(msg), errs.WithField("field", field))
	}

	if _, err := env.Parse(c.Environment); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level", "unknown log level "+c.Logging.Level)
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "":
		c.Logging.Format = "json"
	case "json", "console":
	default:
		return invalid("logging.format", "format must be json or console")
	}

	if c.Stream.InboxSize < 0 {
		return invalid("stream.inboxSize", "inbox size must not be negative")
	}
	if c.Stream.ReconnectMaxElapsed < 0 {
		return invalid("stream.reconnectMaxElapsed", "reconnect window must not be negative")
	}
	channels := c.Stream.Channels[:0]
	for _, ch := range c.Stream.Channels {
		if trimmed := strings.TrimSpace(ch); trimmed != "" {
			channels = append(channels, trimmed)
		}
	}
	c.Stream.Channels = channels

	if c.REST.RateLimit < 0 {
		return invalid("rest.rateLimit", "rate limit must not be negative")
	}
	// A zero rate with a burst admits the burst once and then nothing.
	if c.REST.RateLimit == 0 && c.REST.Burst > 0 {
		return invalid("rest.rateLimit", "rate limit must be positive; set burst to 0 to disable limiting")
	}
	if c.REST.Timeout <= 0 {
		c.REST.Timeout = 15 * time.Second
	}

	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
	return nil
}

// Env resolves the configured environment.
func (c Config) Env() env.Environment {
	e, err := env.Parse(c.Environment)
	if err != nil {
		return env.Staging
	}
	return e
}
