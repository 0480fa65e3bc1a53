package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"funcgate/pkg/logger"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "funcgate.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  address: 127.0.0.1
  port: 4000
gateway:
  cors: true
  executable: nodejs
  max_body_size: 2MB
routes:
  /hello: handlers/hello.js
functions:
  - path: /api/{proxy+}
    entry: handlers/api.js
    handler: main
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 4000 || cfg.Server.Address != "127.0.0.1" {
		t.Fatalf("server block wrong: %+v", cfg.Server)
	}
	if !cfg.Gateway.CORS || cfg.Gateway.Executable != "nodejs" {
		t.Fatalf("gateway block wrong: %+v", cfg.Gateway)
	}
	if cfg.Routes["/hello"] != "handlers/hello.js" {
		t.Fatalf("routes block wrong: %+v", cfg.Routes)
	}
	if len(cfg.Functions) != 1 || cfg.Functions[0].Handler != "main" {
		t.Fatalf("functions block wrong: %+v", cfg.Functions)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFunctionTableMergesAndSorts(t *testing.T) {
	cfg := &Config{
		Routes: map[string]string{
			"/z": "z.js",
			"/a": "a.js",
			"/x": "shadowed.js",
		},
		Functions: []FunctionConfig{
			{Path: "/x", Entry: "expanded.js"},
		},
	}
	table := cfg.FunctionTable()
	if len(table) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(table))
	}
	if table[0].Path != "/x" || table[0].Entry != "expanded.js" {
		t.Fatalf("expanded entry must win the collision: %+v", table[0])
	}
	if table[0].Handler != DefaultHandler {
		t.Fatalf("default handler not applied: %+v", table[0])
	}
	if table[1].Path != "/a" || table[2].Path != "/z" {
		t.Fatalf("shorthand routes not appended in sorted order: %+v", table)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	cfg := &Config{}
	if n, err := cfg.MaxBodyBytes(); err != nil || n != 0 {
		t.Fatalf("empty size should mean unbounded, got %d %v", n, err)
	}
	cfg.Gateway.MaxBodySize = "2MB"
	n, err := cfg.MaxBodyBytes()
	if err != nil || n != 2*1000*1000 {
		t.Fatalf("unexpected parse of 2MB: %d %v", n, err)
	}
	cfg.Gateway.MaxBodySize = "lots"
	if _, err := cfg.MaxBodyBytes(); err == nil {
		t.Fatalf("invalid size must error")
	}
}

func TestAddrDefaults(t *testing.T) {
	cfg := &Config{}
	if got := cfg.Addr(); got != "localhost:3000" {
		t.Fatalf("unexpected default addr %q", got)
	}
	cfg.Server.Address = "0.0.0.0"
	cfg.Server.Port = 8080
	if got := cfg.Addr(); got != "0.0.0.0:8080" {
		t.Fatalf("unexpected addr %q", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FUNCGATE_ADDR", "0.0.0.0:9999")
	t.Setenv("FUNCGATE_CORS", "true")
	t.Setenv("FUNCGATE_MAX_BODY_SIZE", "1MB")
	t.Setenv("FUNCGATE_JOURNAL_PATH", "/tmp/j")

	cfg := &Config{}
	if !LoadEnvOverrides(cfg) {
		t.Fatalf("env overrides not detected")
	}
	if cfg.Server.Address != "0.0.0.0" || cfg.Server.Port != 9999 {
		t.Fatalf("addr override wrong: %+v", cfg.Server)
	}
	if !cfg.Gateway.CORS || cfg.Gateway.MaxBodySize != "1MB" {
		t.Fatalf("gateway overrides wrong: %+v", cfg.Gateway)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/tmp/j" {
		t.Fatalf("journal override wrong: %+v", cfg.Journal)
	}
}

func TestLoadEffectiveWarnsOnMalformedFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "funcgate.log")
	t.Setenv("FUNCGATE_LOG_SINK", "file:"+logPath)
	logger.InitWithLevel("debug")
	defer logger.Silence()

	bad := writeConfig(t, "server: [not: closed")
	cfg, _, err := LoadEffective(bad)
	if err != nil || cfg == nil {
		t.Fatalf("malformed file must still yield a usable config: %v", err)
	}

	missing := filepath.Join(t.TempDir(), "absent.yaml")
	if _, _, err := LoadEffective(missing); err != nil {
		t.Fatalf("missing file must not be fatal: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log sink: %v", err)
	}
	logs := string(data)
	if !strings.Contains(logs, "config_file_unreadable") {
		t.Fatalf("parse failure not surfaced in logs: %s", logs)
	}
	if !strings.Contains(logs, "config_file_missing") {
		t.Fatalf("missing file not distinguished in logs: %s", logs)
	}
	if strings.Count(logs, "config_file_unreadable") != 1 {
		t.Fatalf("missing file must not be reported as unreadable: %s", logs)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("FUNCGATE_CONFIG", "/etc/funcgate.yaml")
	if got := ResolveConfigPath("./flag.yaml", true); got != "./flag.yaml" {
		t.Fatalf("explicit flag must win, got %q", got)
	}
	if got := ResolveConfigPath("./default.yaml", false); got != "/etc/funcgate.yaml" {
		t.Fatalf("env must win over the default, got %q", got)
	}
	os.Unsetenv("FUNCGATE_CONFIG")
	if got := ResolveConfigPath("./default.yaml", false); got != "./default.yaml" {
		t.Fatalf("default must apply last, got %q", got)
	}
}
