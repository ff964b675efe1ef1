package core

import (
	"os"
	"path/filepath"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// ConfigDir returns the directory holding the .env.<env> files.
// CONFIG_DIR wins; otherwise it is the "config" dir of the nearest parent holding a go.mod
// (go-test runs from the package dir), falling back to "./config".
func ConfigDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "config"
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return filepath.Join(currDir, "config")
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return filepath.Join(wd, "config")
		}
		currDir = newDir
	}
}
