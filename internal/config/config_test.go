package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("loading: %v", err)
	}

	if cfg.Server.ListenAddr != "127.0.0.1" || cfg.Server.HTTPPort != 8080 {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Server.PollInterval != 30*time.Second {
		t.Errorf("poll interval = %v", cfg.Server.PollInterval)
	}
	if cfg.Database.Path != "/var/lib/scout/scout.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Auth.TokenDuration != 24*time.Hour {
		t.Errorf("token duration = %v", cfg.Auth.TokenDuration)
	}
	if cfg.Redis.ResultTTL != 30*time.Minute {
		t.Errorf("result ttl = %v", cfg.Redis.ResultTTL)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("redis should be disabled by default, addr = %q", cfg.Redis.Addr)
	}
	if cfg.NATS.URL != "" || cfg.NATS.Port != 4222 {
		t.Errorf("nats defaults = %+v", cfg.NATS)
	}
	if cfg.Server.StaticDir != "" {
		t.Errorf("static dir should default to empty, got %q", cfg.Server.StaticDir)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  listen_addr: 0.0.0.0
  http_port: 9090
  poll_interval: 10s
  static_dir: /srv/scout/web
database:
  path: /tmp/scout-test.db
auth:
  jwt_secret: sekrit
  token_duration: 1h
redis:
  addr: localhost:6379
  db: 2
  result_ttl: 5m
nats:
  url: nats://broker:4222
game_servers:
  - name: Frag Factory
    address: frag.example.com:27960
  - address: bare.example.com:27960
`))
	if err != nil {
		t.Fatalf("loading: %v", err)
	}

	if cfg.Server.ListenAddr != "0.0.0.0" || cfg.Server.HTTPPort != 9090 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.PollInterval != 10*time.Second {
		t.Errorf("poll interval = %v", cfg.Server.PollInterval)
	}
	if cfg.Auth.JWTSecret != "sekrit" || cfg.Auth.TokenDuration != time.Hour {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 || cfg.Redis.ResultTTL != 5*time.Minute {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats = %+v", cfg.NATS)
	}
	if len(cfg.GameServers) != 2 || cfg.GameServers[0].Name != "Frag Factory" {
		t.Errorf("game servers = %+v", cfg.GameServers)
	}
	if cfg.GameServers[1].Address != "bare.example.com:27960" {
		t.Errorf("game servers = %+v", cfg.GameServers)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected an error for a missing file")
	}
	if _, err := Load(writeConfig(t, "server: [not, a, mapping]")); err == nil {
		t.Error("expected an error for malformed yaml")
	}
}
