package main

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/wowsync/wowsync/internal/config"
)

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured output: %v", err)
	}
	return string(out)
}

func withConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	orig := globalCfg
	globalCfg = cfg
	t.Cleanup(func() { globalCfg = orig })
}

func TestConfigShowRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scan.Dir = "/wow/Interface/AddOns"
	withConfig(t, cfg)

	out := captureStdout(t, func() {
		if err := configShowRun(nil, nil); err != nil {
			t.Fatalf("configShowRun returned error: %v", err)
		}
	})

	if !strings.Contains(out, "dir: /wow/Interface/AddOns") {
		t.Errorf("expected scan dir in output, got:\n%s", out)
	}
	if !strings.Contains(out, "min_score: 80") {
		t.Errorf("expected match defaults in output, got:\n%s", out)
	}
}

func TestConfigGetRun(t *testing.T) {
	withConfig(t, config.DefaultConfig())

	out := captureStdout(t, func() {
		if err := configGetRun(nil, []string{"curseforge.match.max_try"}); err != nil {
			t.Fatalf("configGetRun returned error: %v", err)
		}
	})
	if strings.TrimSpace(out) != "5" {
		t.Errorf("expected 5, got %q", out)
	}

	if err := configGetRun(nil, []string{"no.such.key"}); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShouldSkipConfig(t *testing.T) {
	if !shouldSkipConfig("help") || !shouldSkipConfig("version") {
		t.Error("help and version must skip config loading")
	}
	if shouldSkipConfig("sync") {
		t.Error("sync must load config")
	}
}
