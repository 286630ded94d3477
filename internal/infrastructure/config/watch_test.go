package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path string, interval string) {
	t.Helper()
	content := "updater:\n  interval: " + interval + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devserver.yaml")
	writeConfig(t, path, "5")

	changes := make(chan *Config, 4)
	w, err := Watch(path, 20*time.Millisecond, func(cfg *Config) {
		changes <- cfg
	}, nil)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	writeConfig(t, path, "0.5")

	select {
	case cfg := <-changes:
		if cfg.UpdateInterval() != 500*time.Millisecond {
			t.Errorf("reloaded interval = %v, want 500ms", cfg.UpdateInterval())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatch_InvalidReloadReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devserver.yaml")
	writeConfig(t, path, "5")

	errs := make(chan error, 4)
	w, err := Watch(path, 20*time.Millisecond, func(*Config) {
		t.Error("onChange called for invalid config")
	}, func(err error) {
		errs <- err
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	writeConfig(t, path, "-1")

	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected non-nil reload error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
}

func TestWatch_RequiresCallback(t *testing.T) {
	if _, err := Watch(filepath.Join(t.TempDir(), "x.yaml"), 0, nil, nil); err == nil {
		t.Error("Watch() expected error for nil onChange")
	}
}

func TestWatch_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devserver.yaml")
	writeConfig(t, path, "1")

	w, err := Watch(path, 0, func(*Config) {}, nil)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
