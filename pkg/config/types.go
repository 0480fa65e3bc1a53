package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
)

// Config is the main configuration struct.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Routes      map[string]string `yaml:"routes"`
	Functions   []FunctionConfig  `yaml:"functions"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Journal     JournalConfig     `yaml:"journal"`
	Retention   RetentionConfig   `yaml:"retention"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds the optional TLS listener configuration. Key and
// certificate material is supplied pre-made by the operator.
type TLSConfig struct {
	Port     int    `yaml:"port"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// GatewayConfig holds gateway behavior settings.
type GatewayConfig struct {
	CORS        bool              `yaml:"cors"`
	Silent      bool              `yaml:"silent"`
	Executable  string            `yaml:"executable"`
	TempDir     string            `yaml:"temp_dir"`
	Env         map[string]string `yaml:"env"`
	MaxBodySize string            `yaml:"max_body_size"`
	Watch       bool              `yaml:"watch"`
	RunMode     string            `yaml:"run_mode"`
	RateLimit   struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// FunctionConfig is one expanded function registration.
type FunctionConfig struct {
	Path    string            `yaml:"path"`
	Entry   string            `yaml:"entry"`
	Handler string            `yaml:"handler"`
	Env     map[string]string `yaml:"env"`
	Stdout  string            `yaml:"stdout"`
	Stderr  string            `yaml:"stderr"`
}

// DiagnosticsConfig holds the optional diagnostics listener settings.
type DiagnosticsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DocsDir string `yaml:"docs_dir"`
}

// JournalConfig holds the optional invocation journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RetentionConfig holds configuration for the journal prune runner.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Period  string `yaml:"period"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	DefaultPort       = 3000
	DefaultHandler    = "handler"
	DefaultExecutable = "node"
	DefaultRunMode    = "process"
)

// Addr returns host:port for the plain HTTP listener.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "localhost"
	}
	p := c.Server.Port
	if p == 0 {
		p = DefaultPort
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// FunctionTable merges the shorthand path->entry mapping and the expanded
// function list into one registration slice. Expanded entries win on path
// collision; shorthand entries are appended in sorted path order so the
// registration order is stable across runs.
func (c *Config) FunctionTable() []FunctionConfig {
	out := make([]FunctionConfig, 0, len(c.Functions)+len(c.Routes))
	seen := map[string]struct{}{}
	for _, f := range c.Functions {
		if f.Handler == "" {
			f.Handler = DefaultHandler
		}
		seen[f.Path] = struct{}{}
		out = append(out, f)
	}
	paths := make([]string, 0, len(c.Routes))
	for p := range c.Routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		out = append(out, FunctionConfig{Path: p, Entry: c.Routes[p], Handler: DefaultHandler})
	}
	return out
}

// MaxBodyBytes parses the configured max body size ("10MB", "512kb", ...).
// Zero means unbounded.
func (c *Config) MaxBodyBytes() (uint64, error) {
	s := c.Gateway.MaxBodySize
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid max_body_size %q: %w", s, err)
	}
	return n, nil
}

// TempDir returns the configured temp dir or the OS default.
func (c *Config) TempDir() string {
	if c.Gateway.TempDir != "" {
		return c.Gateway.TempDir
	}
	return os.TempDir()
}
