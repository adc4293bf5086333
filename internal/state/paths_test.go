package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootDirUsesOverride(t *testing.T) {
	base := t.TempDir()
	override := filepath.Join(base, "..", filepath.Base(base), "custom-state")

	t.Setenv(StateDirEnv, override)
	t.Setenv(xdgStateHomeEnv, "")

	got, err := RootDir()
	if err != nil {
		t.Fatalf("RootDir() error = %v", err)
	}

	want, err := filepath.Abs(override)
	if err != nil {
		t.Fatalf("filepath.Abs(%q) error = %v", override, err)
	}
	want = filepath.Clean(want)

	if got != want {
		t.Fatalf("RootDir() = %q, want %q", got, want)
	}
}

func TestRootDirUsesXDGStateHome(t *testing.T) {
	xdgHome := t.TempDir()

	t.Setenv(StateDirEnv, "")
	t.Setenv(xdgStateHomeEnv, xdgHome)

	got, err := RootDir()
	if err != nil {
		t.Fatalf("RootDir() error = %v", err)
	}

	want := filepath.Join(xdgHome, appName)
	if got != want {
		t.Fatalf("RootDir() = %q, want %q", got, want)
	}
}

func TestRootDirFallsBackToUserConfigDir(t *testing.T) {
	t.Setenv(StateDirEnv, "  ")
	t.Setenv(xdgStateHomeEnv, "")

	configDir, err := os.UserConfigDir()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}

	got, err := RootDir()
	if err != nil {
		t.Fatalf("RootDir() error = %v", err)
	}
	if filepath.Base(got) != appName || !filepath.IsAbs(got) {
		t.Fatalf("RootDir() = %q, want absolute path ending in %q", got, appName)
	}
	if filepath.Dir(got) != filepath.Clean(configDir) && filepath.IsAbs(configDir) {
		t.Fatalf("RootDir() = %q, want under %q", got, configDir)
	}
}

func TestRuntimePathsUnderRoot(t *testing.T) {
	root := t.TempDir()
	t.Setenv(StateDirEnv, root)
	t.Setenv(xdgStateHomeEnv, "")

	dbFile, err := DatabaseFile()
	if err != nil {
		t.Fatalf("DatabaseFile() error = %v", err)
	}
	if want := filepath.Join(root, "bugscribe.db"); dbFile != want {
		t.Fatalf("DatabaseFile() = %q, want %q", dbFile, want)
	}

	cfgFile, err := ConfigFile()
	if err != nil {
		t.Fatalf("ConfigFile() error = %v", err)
	}
	if want := filepath.Join(root, "bugscribe.yaml"); cfgFile != want {
		t.Fatalf("ConfigFile() = %q, want %q", cfgFile, want)
	}
}

func TestEnsureRootCreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "state")
	t.Setenv(StateDirEnv, root)

	got, err := EnsureRoot()
	if err != nil {
		t.Fatalf("EnsureRoot() error = %v", err)
	}
	if got != root {
		t.Fatalf("EnsureRoot() = %q, want %q", got, root)
	}
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("stat %q: %v", root, err)
	}
	if !info.IsDir() {
		t.Fatalf("%q is not a directory", root)
	}
}
