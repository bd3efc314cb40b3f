package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configKeys = []string{
	"PORT", "CHAT_SERVER_URL", "CHAT_POLL_INTERVAL", "CHAT_REQUEST_TIMEOUT",
	"CHAT_REMOTE_RPS", "CHAT_REMOTE_BURST", "CHAT_MAX_RESPONSE_SIZE", "CHAT_SELF_ID",
	"LOG_LEVEL", "LOG_FORMAT", "DUMMY_PORT",
}

// clearEnv 清空相关环境变量，测试结束后由 t.Setenv 自动恢复。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Remote.BaseURL != DefaultServerURL {
		t.Fatalf("unexpected base url %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.PollInterval != 3*time.Second {
		t.Fatalf("unexpected poll interval %s", cfg.Remote.PollInterval)
	}
	if cfg.Remote.MaxResponseSize != 16<<20 {
		t.Fatalf("unexpected max response size %d", cfg.Remote.MaxResponseSize)
	}
	if cfg.Remote.SelfID != "you" {
		t.Fatalf("unexpected self id %q", cfg.Remote.SelfID)
	}
	if cfg.Log.Format != "text" || cfg.Log.Level != "info" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	if cfg.Dummy.Addr != ":8090" {
		t.Fatalf("unexpected dummy addr %q", cfg.Dummy.Addr)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CHAT_SERVER_URL", "http://localhost:8090/api/")
	t.Setenv("CHAT_POLL_INTERVAL", "500")
	t.Setenv("CHAT_REQUEST_TIMEOUT", "2s")
	t.Setenv("CHAT_REMOTE_RPS", "4.5")
	t.Setenv("CHAT_REMOTE_BURST", "3")
	t.Setenv("CHAT_MAX_RESPONSE_SIZE", "512kB")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Remote.BaseURL != "http://localhost:8090/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.PollInterval != 500*time.Millisecond {
		t.Fatalf("bare number should be millis, got %s", cfg.Remote.PollInterval)
	}
	if cfg.Remote.RequestTimeout != 2*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Remote.RequestTimeout)
	}
	if cfg.Remote.RequestsPerSecond != 4.5 || cfg.Remote.Burst != 3 {
		t.Fatalf("unexpected limiter config %+v", cfg.Remote)
	}
	if cfg.Remote.MaxResponseSize != 512000 {
		t.Fatalf("unexpected max response size %d", cfg.Remote.MaxResponseSize)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("unexpected log format %q", cfg.Log.Format)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "chatsync.yaml")
	content := `
server:
  port: "7000"
remote:
  url: http://file.example/api
  pollInterval: 5s
  selfId: me
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHAT_POLL_INTERVAL", "1s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":7000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Remote.BaseURL != "http://file.example/api" {
		t.Fatalf("unexpected base url %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.PollInterval != time.Second {
		t.Fatalf("env should override file, got %s", cfg.Remote.PollInterval)
	}
	if cfg.Remote.SelfID != "me" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected file values %+v %+v", cfg.Remote, cfg.Log)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                   "80 80",
		"CHAT_SERVER_URL":        "not a url",
		"CHAT_POLL_INTERVAL":     "-1s",
		"CHAT_REQUEST_TIMEOUT":   "soon",
		"CHAT_REMOTE_RPS":        "fast",
		"CHAT_REMOTE_BURST":      "many",
		"CHAT_MAX_RESPONSE_SIZE": "huge",
		"LOG_FORMAT":             "xml",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
