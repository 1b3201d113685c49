// Package config loads the YAML configuration of a gantry server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/gantry/binding"
)

var (
	// ErrInvalidWorkers is returned when the worker pool size is not positive
	// or the queue size is negative.
	ErrInvalidWorkers = errors.New("config: invalid workers")

	// ErrInvalidServer is returned for an empty listen address or negative
	// timeouts and limits.
	ErrInvalidServer = errors.New("config: invalid server")

	// ErrInvalidRequestID is returned for an unknown request ID generator.
	ErrInvalidRequestID = errors.New("config: invalid request_id")

	// ErrInvalidLogging is returned for an unknown log level or format.
	ErrInvalidLogging = errors.New("config: invalid logging")
)

// Request ID generators.
const (
	GeneratorUUIDv4 = "uuidv4"
	GeneratorUUIDv7 = "uuidv7"
	GeneratorULID   = "ulid"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the server configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Workers   Workers   `yaml:"workers"`
	RequestID RequestID `yaml:"request_id"`
	Security  Security  `yaml:"security"`
	Logging   Logging   `yaml:"logging"`
	Metrics   Metrics   `yaml:"metrics"`
}

// Server holds listener settings and per-request limits.
type Server struct {
	Addr              string        `yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gte=0"`
	ReadTimeout       time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout      time.Duration `yaml:"write_timeout" validate:"gte=0"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// RequestTimeout bounds each request. Zero disables the limit.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`

	// MaxBodyBytes limits request bodies. Zero disables the limit.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gte=0"`
}

// Workers sizes the worker pool that handlers hand blocking jobs to.
type Workers struct {
	Size      int `yaml:"size" validate:"gte=1"`
	QueueSize int `yaml:"queue_size" validate:"gte=0"`
}

// RequestID configures request ID generation.
type RequestID struct {
	Header        string `yaml:"header"`
	Generator     string `yaml:"generator" validate:"omitempty,oneof=uuidv4 uuidv7 ulid"`
	TrustIncoming bool   `yaml:"trust_incoming"`
}

// Security configures response security headers and proxy trust.
type Security struct {
	FrameOption           string   `yaml:"frame_option" validate:"omitempty,oneof=DENY SAMEORIGIN"`
	ReferrerPolicy        string   `yaml:"referrer_policy"`
	HSTSMaxAge            int      `yaml:"hsts_max_age" validate:"gte=0"`
	ContentSecurityPolicy string   `yaml:"content_security_policy"`
	TrustedProxies        []string `yaml:"trusted_proxies"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Metrics configures the Prometheus endpoint. An empty Path disables it.
type Metrics struct {
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path" validate:"omitempty,startswith=/"`
}

// Default returns the configuration used for keys missing from a file.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   10 * time.Second,
			RequestTimeout:    30 * time.Second,
			MaxBodyBytes:      1 << 20,
		},
		Workers: Workers{
			Size:      4,
			QueueSize: 64,
		},
		RequestID: RequestID{
			Header:    "X-Request-ID",
			Generator: GeneratorUUIDv4,
		},
		Security: Security{
			FrameOption:    "DENY",
			ReferrerPolicy: "strict-origin-when-cross-origin",
		},
		Logging: Logging{
			Level:  "info",
			Format: FormatText,
		},
		Metrics: Metrics{
			Namespace: "gantry",
			Path:      "/metrics",
		},
	}
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks field constraints and reports every failing section.
func (c Config) Validate() error {
	var errs []error

	sections := []struct {
		sentinel error
		value    any
	}{
		{ErrInvalidServer, c.Server},
		{ErrInvalidWorkers, c.Workers},
		{ErrInvalidRequestID, c.RequestID},
		{ErrInvalidLogging, c.Logging},
		{nil, c.Security},
		{nil, c.Metrics},
	}

	for _, s := range sections {
		err := binding.Validate(s.value, "yaml")
		if err == nil {
			continue
		}
		if s.sentinel != nil {
			err = fmt.Errorf("%w: %w", s.sentinel, err)
		}
		errs = append(errs, err)
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidLogging, err))
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level. An empty level is info.
func (l Logging) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return lvl, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, err
	}
	return lvl, nil
}

// NewLogger returns a slog.Logger writing to w in the configured format.
func (l Logging) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLogging, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(l.Format) {
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case FormatText, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidLogging, l.Format)
	}
}
