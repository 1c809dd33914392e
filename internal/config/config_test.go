package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aicell-lab/hypha-agents-sub001/internal/config"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoad_DefaultsWhenNoFiles(t *testing.T) {
	loader := config.NewLoaderWithDirs(t.TempDir(), t.TempDir())

	settings, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if settings.KernelSpec != "starlark" {
		t.Errorf("kernel spec = %q", settings.KernelSpec)
	}
	if settings.StartupTimeout() != 120*time.Second {
		t.Errorf("startup timeout = %s", settings.StartupTimeout())
	}
	if settings.ExecuteTimeout() != 600*time.Second {
		t.Errorf("execute timeout = %s", settings.ExecuteTimeout())
	}
	if settings.MaxTurns != 20 {
		t.Errorf("max turns = %d", settings.MaxTurns)
	}
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	userDir := t.TempDir()
	projectDir := t.TempDir()
	writeConfig(t, userDir, "model: model-a\nmaxTurns: 5\n")
	writeConfig(t, projectDir, "model: model-b\n")

	settings, err := config.NewLoaderWithDirs(userDir, projectDir).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if settings.Model != "model-b" {
		t.Errorf("model = %q, want the project value", settings.Model)
	}
	if settings.MaxTurns != 5 {
		t.Errorf("max turns = %d, want the user value to survive", settings.MaxTurns)
	}
}

func TestLoad_PartialOverlayKeepsDefaults(t *testing.T) {
	userDir := t.TempDir()
	writeConfig(t, userDir, "executeTimeoutSeconds: 30\n")

	settings, err := config.NewLoaderWithDirs(userDir, t.TempDir()).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if settings.ExecuteTimeout() != 30*time.Second {
		t.Errorf("execute timeout = %s", settings.ExecuteTimeout())
	}
	if settings.KernelSpec != "starlark" {
		t.Errorf("kernel spec = %q, overlay must not clobber defaults", settings.KernelSpec)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	userDir := t.TempDir()
	writeConfig(t, userDir, "model: [unclosed\n")

	if _, err := config.NewLoaderWithDirs(userDir, t.TempDir()).Load(); err == nil {
		t.Error("expected an error for malformed yaml")
	}
}
