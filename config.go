package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_PARTICLE_API = "https://api.particle.io"
	DEFAULT_SCALE_FACTOR = 16.0
	DEFAULT_MEASUREMENT  = "temperature"
	DEFAULT_JOB_NAME     = "temperature_logger"

	DECODE_LINEAR  = "linear"
	DECODE_MCP9808 = "mcp9808"
)

var DEFAULT_VARIABLES = []string{"temp1", "temp2", "temp3", "temp4", "temp5"}

type Config struct {
	StreamIRI        string `toml:"stream_iri" yaml:"stream_iri"`
	StreamPrivateKey string `toml:"stream_private_key" yaml:"stream_private_key"`

	ParticleAPIURL     string `toml:"particle_api_url" yaml:"particle_api_url"`
	DeviceID           string `toml:"device_id" yaml:"device_id"`
	DeviceAccessToken  string `toml:"device_access_token" yaml:"device_access_token"`
	MaxConcurrentReads int    `toml:"max_concurrent_reads" yaml:"max_concurrent_reads"`

	Variables   []string `toml:"variables" yaml:"variables"`
	ScaleFactor float64  `toml:"scale_factor" yaml:"scale_factor"`
	Decode      string   `toml:"decode" yaml:"decode"`

	// Empty means requests are never cut short.
	HTTPTimeout string `toml:"http_timeout" yaml:"http_timeout"`

	Influx InfluxConfig `toml:"influx" yaml:"influx"`

	PushGatewayURL string `toml:"pushgateway_url" yaml:"pushgateway_url"`
	JobName        string `toml:"job_name" yaml:"job_name"`

	httpTimeout time.Duration
}

// InfluxConfig keeps the field names the pool collector used for its datastore.
type InfluxConfig struct {
	DatabaseURL      string `toml:"url" yaml:"url"`
	DatabaseUser     string `toml:"user" yaml:"user"`
	DatabasePassword string `toml:"password" yaml:"password"`
	DatabaseDatabase string `toml:"database" yaml:"database"`
	Measurement      string `toml:"measurement" yaml:"measurement"`
}

func (c InfluxConfig) Enabled() bool { return c.DatabaseURL != "" }

// ReadConfig loads the optional config file, lets the environment override it,
// then applies defaults and validates.
func ReadConfig(path string, getenv func(string) string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := decode_config_file(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode_config_file(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), cfg); err != nil {
			return fmt.Errorf("decode toml config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("decode yaml config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension %q", path, filepath.Ext(path))
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	str("TEMPERATURE_PHANT_IRI", &c.StreamIRI)
	str("TEMPERATURE_PHANT_PRIVATE_KEY", &c.StreamPrivateKey)
	str("TEMPERATURE_PARTICLE_DEVICE_ID", &c.DeviceID)
	str("TEMPERATURE_PARTICLE_ACCESS_KEY", &c.DeviceAccessToken)
	str("TEMPERATURE_PARTICLE_API_URL", &c.ParticleAPIURL)
	str("TEMPERATURE_DECODE", &c.Decode)
	str("TEMPERATURE_HTTP_TIMEOUT", &c.HTTPTimeout)
	str("TEMPERATURE_INFLUX_URL", &c.Influx.DatabaseURL)
	str("TEMPERATURE_INFLUX_USER", &c.Influx.DatabaseUser)
	str("TEMPERATURE_INFLUX_PASSWORD", &c.Influx.DatabasePassword)
	str("TEMPERATURE_INFLUX_DATABASE", &c.Influx.DatabaseDatabase)
	str("TEMPERATURE_INFLUX_MEASUREMENT", &c.Influx.Measurement)
	str("TEMPERATURE_PUSHGATEWAY_URL", &c.PushGatewayURL)

	if v := getenv("TEMPERATURE_VARIABLES"); v != "" {
		c.Variables = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Variables = append(c.Variables, name)
			}
		}
	}

	if v := getenv("TEMPERATURE_SCALE_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TEMPERATURE_SCALE_FACTOR: %w", err)
		}
		c.ScaleFactor = f
	}

	if v := getenv("TEMPERATURE_MAX_CONCURRENT_READS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TEMPERATURE_MAX_CONCURRENT_READS: %w", err)
		}
		c.MaxConcurrentReads = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ParticleAPIURL == "" {
		c.ParticleAPIURL = DEFAULT_PARTICLE_API
	}
	if len(c.Variables) == 0 {
		c.Variables = append([]string(nil), DEFAULT_VARIABLES...)
	}
	if c.ScaleFactor == 0 {
		c.ScaleFactor = DEFAULT_SCALE_FACTOR
	}
	if c.Decode == "" {
		c.Decode = DECODE_LINEAR
	}
	if c.Influx.Measurement == "" {
		c.Influx.Measurement = DEFAULT_MEASUREMENT
	}
	if c.JobName == "" {
		c.JobName = DEFAULT_JOB_NAME
	}
}

func (c *Config) validate() error {
	if c.StreamIRI == "" {
		return fmt.Errorf("stream_iri is required (TEMPERATURE_PHANT_IRI)")
	}
	if c.StreamPrivateKey == "" {
		return fmt.Errorf("stream_private_key is required (TEMPERATURE_PHANT_PRIVATE_KEY)")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required (TEMPERATURE_PARTICLE_DEVICE_ID)")
	}
	if c.DeviceAccessToken == "" {
		return fmt.Errorf("device_access_token is required (TEMPERATURE_PARTICLE_ACCESS_KEY)")
	}
	if c.ScaleFactor <= 0 {
		return fmt.Errorf("scale_factor must be positive, got %v", c.ScaleFactor)
	}
	if c.MaxConcurrentReads < 0 {
		return fmt.Errorf("max_concurrent_reads must not be negative, got %d", c.MaxConcurrentReads)
	}

	seen := make(map[string]bool, len(c.Variables))
	for _, name := range c.Variables {
		if name == "" {
			return fmt.Errorf("variables: empty variable name")
		}
		if seen[name] {
			return fmt.Errorf("variables: %q listed twice", name)
		}
		seen[name] = true
	}

	switch c.Decode {
	case DECODE_LINEAR, DECODE_MCP9808:
	default:
		return fmt.Errorf("decode must be %q or %q, got %q", DECODE_LINEAR, DECODE_MCP9808, c.Decode)
	}

	if c.HTTPTimeout != "" {
		d, err := time.ParseDuration(c.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("http_timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("http_timeout must not be negative, got %s", d)
		}
		c.httpTimeout = d
	}
	return nil
}

// Timeout is zero unless http_timeout was configured.
func (c *Config) Timeout() time.Duration { return c.httpTimeout }
