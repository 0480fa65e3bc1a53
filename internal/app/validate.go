package app

import (
	"fmt"
	"strings"

	"funcgate/pkg/config"
)

// validateConfig rejects configurations the emulator cannot honor before
// any listener binds or worker spawns.
func validateConfig(cfg *config.Config) error {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = config.DefaultPort
	}

	mode := cfg.Gateway.RunMode
	if mode == "" {
		mode = config.DefaultRunMode
		cfg.Gateway.RunMode = mode
	}
	if mode != config.DefaultRunMode {
		return fmt.Errorf("unsupported run_mode %q: only %q is available", mode, config.DefaultRunMode)
	}

	table := cfg.FunctionTable()
	if len(table) == 0 {
		return fmt.Errorf("no functions configured: set routes or functions")
	}
	seen := map[string]int{}
	for i, fc := range table {
		if fc.Path == "" || !strings.HasPrefix(fc.Path, "/") {
			return fmt.Errorf("function %d: path %q must start with /", i, fc.Path)
		}
		if fc.Entry == "" {
			return fmt.Errorf("function %q: entry must be set", fc.Path)
		}
		if prev, ok := seen[fc.Path]; ok {
			return fmt.Errorf("functions %d and %d both register path %q", prev, i, fc.Path)
		}
		seen[fc.Path] = i
	}

	tls := cfg.Server.TLS
	if tls.Port != 0 && (tls.CertFile == "" || tls.KeyFile == "") {
		return fmt.Errorf("tls listener on port %d requires cert_file and key_file", tls.Port)
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal enabled without a path")
	}
	if cfg.Retention.Enabled && !cfg.Journal.Enabled {
		return fmt.Errorf("retention requires the journal to be enabled")
	}
	if cfg.Diagnostics.Enabled && cfg.Diagnostics.Port == 0 {
		return fmt.Errorf("diagnostics enabled without a port")
	}
	return nil
}
