// Package state centralizes filesystem locations for BugScribe runtime artifacts.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirEnv overrides the default runtime state root.
	StateDirEnv = "BUGSCRIBE_STATE_DIR"

	xdgStateHomeEnv = "XDG_STATE_HOME"
	appName         = "bugscribe"
)

// RootDir returns the runtime state root for BugScribe.
// Resolution order:
//  1. BUGSCRIBE_STATE_DIR (if set)
//  2. XDG_STATE_HOME/bugscribe (if XDG_STATE_HOME is set)
//  3. os.UserConfigDir()/bugscribe (cross-platform fallback)
func RootDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(StateDirEnv)); override != "" {
		return normalizePath(override)
	}

	if xdg := strings.TrimSpace(os.Getenv(xdgStateHomeEnv)); xdg != "" {
		root, err := normalizePath(xdg)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, appName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	root, err := normalizePath(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, appName), nil
}

// DatabaseFile returns the default SQLite store path.
func DatabaseFile() (string, error) {
	return InRoot("bugscribe.db")
}

// ConfigFile returns the default config file path under the state root.
func ConfigFile() (string, error) {
	return InRoot("bugscribe.yaml")
}

// EnsureRoot creates the state root if missing and returns it.
func EnsureRoot() (string, error) {
	root, err := RootDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return "", fmt.Errorf("create state dir %q: %w", root, err)
	}
	return root, nil
}

// InRoot returns a path rooted under RootDir with additional path elements.
func InRoot(parts ...string) (string, error) {
	root, err := RootDir()
	if err != nil {
		return "", err
	}
	all := make([]string, 0, len(parts)+1)
	all = append(all, root)
	all = append(all, parts...)
	return filepath.Join(all...), nil
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %q: %w", path, err)
	}
	return filepath.Clean(absPath), nil
}
