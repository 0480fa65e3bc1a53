package worker

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed bootstrap.js
var bootstrapScript []byte

// BootstrapName is the fixed file name of the worker entry script.
const BootstrapName = "funcgate-bootstrap.js"

// MaterializeBootstrap writes the embedded worker entry script to its fixed
// path under dir. It runs once before any process is spawned; every worker
// is started against this path with the function's entry reference and
// handler identifier as its two positional arguments.
func MaterializeBootstrap(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	path := filepath.Join(dir, BootstrapName)
	if err := os.WriteFile(path, bootstrapScript, 0o644); err != nil {
		return "", fmt.Errorf("write bootstrap artifact: %w", err)
	}
	return path, nil
}
