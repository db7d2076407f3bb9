// Package config loads relaynet configuration from an optional YAML file,
// a .env file and RELAYNET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/andreassavva/relay/internal/logging"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores: transport.endpoint is RELAYNET_TRANSPORT_ENDPOINT.
const EnvPrefix = "RELAYNET"

// Config is the full relaynet configuration.
type Config struct {
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`
	Log       logging.Config  `yaml:"log" mapstructure:"log"`
	Otel      OtelConfig      `yaml:"otel" mapstructure:"otel"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
}

// TransportConfig selects and configures the fetch primitive.
type TransportConfig struct {
	Kind     string            `yaml:"kind" mapstructure:"kind" validate:"required,oneof=http grpc"`
	Endpoint string            `yaml:"endpoint" mapstructure:"endpoint" validate:"required"`
	Service  string            `yaml:"service" mapstructure:"service"`
	Timeout  time.Duration     `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	Headers  map[string]string `yaml:"headers" mapstructure:"headers"`
}

// OtelConfig enables tracing and metrics export when Endpoint is set.
type OtelConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Service  string `yaml:"service" mapstructure:"service"`
}

// NormalizeConfig mirrors normalize.Options.
type NormalizeConfig struct {
	TreatMissingFieldsAsNull bool `yaml:"treat_missing_fields_as_null" mapstructure:"treat_missing_fields_as_null"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Transport.Kind == "" {
		c.Transport.Kind = "http"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 30 * time.Second
	}
	if c.Otel.Service == "" {
		c.Otel.Service = "relaynet"
	}
	c.Log.ApplyDefaults()
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct constraints and the logging section.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fieldError(e))
		}
		return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func fieldError(e validator.FieldError) string {
	name := strings.ToLower(strings.TrimPrefix(e.Namespace(), "Config."))
	switch e.Tag() {
	case "required":
		return name + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", name, e.Param(), e.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", name, e.Param())
	default:
		return fmt.Sprintf("%s failed %s", name, e.Tag())
	}
}

// LoaderConfig holds optional file overrides.
type LoaderConfig struct {
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit YAML config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path. Without it ./.env is used
// when present.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// keys lists every leaf key so AutomaticEnv values reach Unmarshal.
var keys = []string{
	"transport.kind",
	"transport.endpoint",
	"transport.service",
	"transport.timeout",
	"log.level",
	"log.format",
	"log.output",
	"log.no_color",
	"log.timestamp",
	"log.caller",
	"otel.endpoint",
	"otel.service",
	"normalize.treat_missing_fields_as_null",
}

// Load reads configuration without applying defaults or validating, so
// callers can layer flag overrides on top first.
func Load(opts ...LoaderOption) (Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	envFile := lc.EnvFile
	if envFile == "" {
		if _, err := os.Stat(".env"); err == nil {
			envFile = ".env"
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("config: load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", lc.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
