// Package config loads depthmesh settings. Sources apply in order:
// built-in defaults, then an optional YAML file, then DEPTHMESH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/df07/go-depthmesh/pkg/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. DEPTHMESH_SERVER_PORT
const EnvPrefix = "DEPTHMESH"

// Config is the complete depthmesh configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" env:"SERVER"`
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`
	Log      LogConfig      `yaml:"log" env:"LOG"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port              int           `yaml:"port" env:"PORT"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs" env:"MAX_CONCURRENT_JOBS"`
	QueueTimeout      time.Duration `yaml:"queue_timeout" env:"QUEUE_TIMEOUT"` // wait for a free job slot before answering 503
	MaxUploadBytes    int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	RateLimitRPS      float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"` // 0 disables limiting
	RateLimitBurst    int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	WorkDir           string        `yaml:"work_dir" env:"WORK_DIR"` // empty means the OS temp dir
}

// PipelineConfig holds conversion defaults and limits
type PipelineConfig struct {
	DefaultResolution   int  `yaml:"default_resolution" env:"DEFAULT_RESOLUTION"`
	MinResolution       int  `yaml:"min_resolution" env:"MIN_RESOLUTION"`
	MaxResolution       int  `yaml:"max_resolution" env:"MAX_RESOLUTION"`
	BackgroundThreshold int  `yaml:"background_threshold" env:"BACKGROUND_THRESHOLD"`
	BackgroundFill      int  `yaml:"background_fill" env:"BACKGROUND_FILL"`
	BlurKernel          int  `yaml:"blur_kernel" env:"BLUR_KERNEL"`
	STLBinary           bool `yaml:"stl_binary" env:"STL_BINARY"`
	STLNormals          bool `yaml:"stl_normals" env:"STL_NORMALS"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json, console
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      2 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
			MaxConcurrentJobs: 4,
			QueueTimeout:      5 * time.Second,
			MaxUploadBytes:    32 << 20,
			RateLimitRPS:      10,
			RateLimitBurst:    20,
		},
		Pipeline: PipelineConfig{
			DefaultResolution:   512,
			MinResolution:       128,
			MaxResolution:       1024,
			BackgroundThreshold: 240,
			BackgroundFill:      255,
			BlurKernel:          5,
			STLBinary:           true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path (optional; a missing file keeps the defaults), applies
// environment overrides and validates the result
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem(), EnvPrefix, lookup); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv walks struct fields by their env tags, recursing into nested sections
func applyEnv(v reflect.Value, prefix string, lookup func(string) (string, bool)) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, key, lookup); err != nil {
				return err
			}
			continue
		}

		value, ok := lookup(key)
		if !ok || value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// Validate reports every inconsistent setting at once
func (c *Config) Validate() error {
	var errs []string

	s := c.Server
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", s.Port))
	}
	if s.MaxConcurrentJobs <= 0 {
		errs = append(errs, "server.max_concurrent_jobs must be positive")
	}
	if s.QueueTimeout < 0 {
		errs = append(errs, "server.queue_timeout must not be negative")
	}
	if s.MaxUploadBytes <= 0 {
		errs = append(errs, "server.max_upload_bytes must be positive")
	}
	if s.RateLimitRPS < 0 {
		errs = append(errs, "server.rate_limit_rps must not be negative")
	}
	if s.RateLimitRPS > 0 && s.RateLimitBurst <= 0 {
		errs = append(errs, "server.rate_limit_burst must be positive when rate limiting is on")
	}

	p := c.Pipeline
	if p.MinResolution < 2 {
		errs = append(errs, fmt.Sprintf("pipeline.min_resolution %d must be at least 2", p.MinResolution))
	}
	if p.MinResolution > p.MaxResolution {
		errs = append(errs, fmt.Sprintf("pipeline.min_resolution %d exceeds max_resolution %d", p.MinResolution, p.MaxResolution))
	}
	if p.DefaultResolution < p.MinResolution || p.DefaultResolution > p.MaxResolution {
		errs = append(errs, fmt.Sprintf("pipeline.default_resolution %d outside [%d, %d]",
			p.DefaultResolution, p.MinResolution, p.MaxResolution))
	}
	if p.BackgroundThreshold < 0 || p.BackgroundThreshold > 255 {
		errs = append(errs, fmt.Sprintf("pipeline.background_threshold %d outside [0, 255]", p.BackgroundThreshold))
	}
	if p.BackgroundFill < 0 || p.BackgroundFill > 255 {
		errs = append(errs, fmt.Sprintf("pipeline.background_fill %d outside [0, 255]", p.BackgroundFill))
	}
	if p.BlurKernel < 1 || p.BlurKernel%2 == 0 {
		errs = append(errs, fmt.Sprintf("pipeline.blur_kernel %d must be a positive odd number", p.BlurKernel))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q (valid: json, console)", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ClampResolution limits a requested resolution to the configured range;
// zero selects the default
func (p PipelineConfig) ClampResolution(resolution int) int {
	if resolution == 0 {
		return p.DefaultResolution
	}
	return pipeline.ClampResolution(resolution, p.MinResolution, p.MaxResolution)
}

// PipelineSettings converts the section into pipeline.Config
func (c *Config) PipelineSettings() pipeline.Config {
	return pipeline.Config{
		BlurKernel:          c.Pipeline.BlurKernel,
		BackgroundThreshold: uint8(c.Pipeline.BackgroundThreshold),
		BackgroundFill:      uint8(c.Pipeline.BackgroundFill),
		WorkDir:             c.Server.WorkDir,
	}
}

// DefaultOptions returns pipeline options seeded from the configured defaults
func (c *Config) DefaultOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Resolution = c.Pipeline.DefaultResolution
	opts.STLASCII = !c.Pipeline.STLBinary
	opts.STLNormals = c.Pipeline.STLNormals
	return opts
}
