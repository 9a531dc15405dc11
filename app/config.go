package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Gateway kinds accepted by GatewayConfig.Kind.
const (
	GatewayREST   = "rest"
	GatewayKratos = "kratos"
)

const (
	defaultAddr            = ":8080"
	defaultGatewayURL      = "http://127.0.0.1:4000"
	defaultKratosURL       = "http://127.0.0.1:4433"
	defaultGatewayTimeout  = 10 * time.Second
	defaultFlowTTL         = 15 * time.Minute
	defaultShutdownTimeout = 10 * time.Second
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// FlowTTL is how long an untouched login flow is kept.
	FlowTTL         time.Duration `yaml:"flow_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GatewayConfig struct {
	// Kind selects the implementation: "rest" or "kratos".
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`

	KratosURL  string `yaml:"kratos_url"`
	TokenizeAs string `yaml:"tokenize_as"`

	// JWKSURL enables verification of session tokens when set.
	JWKSURL string `yaml:"jwks_url"`
	Issuer  string `yaml:"issuer"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	// Output is a zap sink: "stderr", "stdout" or a file path.
	Output string `yaml:"output"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            defaultAddr,
			FlowTTL:         defaultFlowTTL,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Gateway: GatewayConfig{
			Kind:      GatewayREST,
			URL:       defaultGatewayURL,
			Timeout:   defaultGatewayTimeout,
			KratosURL: defaultKratosURL,
		},
		Log: LogConfig{Level: defaultLogLevel, Output: "stderr"},
	}
}

// LoadConfig reads the file named by LOGIN_CONFIG, if any, and applies the
// environment overrides.
func LoadConfig() (Config, error) {
	return Load(os.Getenv("LOGIN_CONFIG"))
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("LOGIN_HTTP_ADDR", c.Server.Addr)
	c.Gateway.Kind = getEnv("LOGIN_GATEWAY_KIND", c.Gateway.Kind)
	c.Gateway.URL = getEnv("LOGIN_GATEWAY_URL", c.Gateway.URL)
	c.Gateway.KratosURL = getEnv("LOGIN_KRATOS_URL", c.Gateway.KratosURL)
	c.Gateway.JWKSURL = getEnv("LOGIN_JWKS_URL", c.Gateway.JWKSURL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Output = getEnv("LOG_OUTPUT", c.Log.Output)
}

// Validate reports every problem of the configuration at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.FlowTTL <= 0 {
		errs = append(errs, errors.New("server.flow_ttl must be positive"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout must be positive"))
	}

	switch c.Gateway.Kind {
	case GatewayREST:
		if err := checkURL("gateway.url", c.Gateway.URL); err != nil {
			errs = append(errs, err)
		}
	case GatewayKratos:
		if err := checkURL("gateway.kratos_url", c.Gateway.KratosURL); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.kind %q is not one of %q, %q", c.Gateway.Kind, GatewayREST, GatewayKratos))
	}

	if c.Gateway.JWKSURL != "" {
		if err := checkURL("gateway.jwks_url", c.Gateway.JWKSURL); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level: %w", err))
		}
	}
	return errors.Join(errs...)
}

func checkURL(name, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is required", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
