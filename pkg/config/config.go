package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"funcgate/pkg/logger"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	Config string
	Set    map[string]bool
}

// ParseCommandFlags defines and parses command-line flags and returns them
// along with a map indicating which flags were explicitly set.
func ParseCommandFlags() Flags {
	addrPtr := flag.String("addr", "localhost:3000", "HTTP listen address")
	cfgPtr := flag.String("config", "./funcgate.yaml", "Path to config file")
	flag.Parse()
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, Config: *cfgPtr, Set: set}
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the FUNCGATE_CONFIG env var when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("FUNCGATE_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvOverrides applies FUNCGATE_* environment overrides onto cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	if v := os.Getenv("FUNCGATE_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	} else {
		if host := os.Getenv("FUNCGATE_ADDRESS"); host != "" {
			envUsed = true
			cfg.Server.Address = host
		}
		if port := os.Getenv("FUNCGATE_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = pi
			}
		}
	}
	if v := os.Getenv("FUNCGATE_TLS_PORT"); v != "" {
		if pi, err := strconv.Atoi(v); err == nil {
			envUsed = true
			cfg.Server.TLS.Port = pi
		}
	}
	if v := os.Getenv("FUNCGATE_TLS_CERT"); v != "" {
		envUsed = true
		cfg.Server.TLS.CertFile = v
	}
	if v := os.Getenv("FUNCGATE_TLS_KEY"); v != "" {
		envUsed = true
		cfg.Server.TLS.KeyFile = v
	}
	if v := os.Getenv("FUNCGATE_EXECUTABLE"); v != "" {
		envUsed = true
		cfg.Gateway.Executable = v
	}
	if v := os.Getenv("FUNCGATE_TEMP_DIR"); v != "" {
		envUsed = true
		cfg.Gateway.TempDir = v
	}
	if v := os.Getenv("FUNCGATE_MAX_BODY_SIZE"); v != "" {
		envUsed = true
		cfg.Gateway.MaxBodySize = v
	}
	if v := os.Getenv("FUNCGATE_CORS"); v != "" {
		envUsed = true
		cfg.Gateway.CORS = parseBool(v)
	}
	if v := os.Getenv("FUNCGATE_SILENT"); v != "" {
		envUsed = true
		cfg.Gateway.Silent = parseBool(v)
	}
	if v := os.Getenv("FUNCGATE_WATCH"); v != "" {
		envUsed = true
		cfg.Gateway.Watch = parseBool(v)
	}
	if v := os.Getenv("FUNCGATE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Gateway.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("FUNCGATE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Gateway.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("FUNCGATE_DIAG_PORT"); v != "" {
		if pi, err := strconv.Atoi(v); err == nil {
			envUsed = true
			cfg.Diagnostics.Enabled = true
			cfg.Diagnostics.Port = pi
		}
	}
	if v := os.Getenv("FUNCGATE_JOURNAL_PATH"); v != "" {
		envUsed = true
		cfg.Journal.Enabled = true
		cfg.Journal.Path = v
	}
	if v := os.Getenv("FUNCGATE_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	return envUsed
}

// LoadEffective loads config from the given path and applies environment
// overrides. A missing file is not fatal; env and defaults still apply. A
// file that exists but fails to parse is warned about so a typo'd config
// does not silently degrade to the defaults.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			logger.Warn("config_file_unreadable", "path", path, "error", err)
		} else {
			logger.Debug("config_file_missing", "path", path)
		}
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
