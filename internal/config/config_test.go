package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wondertwin-ai/loyaltynft/internal/contract"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loyaltynft.yaml")
	content := `
server:
  port: 9000
contract:
  backend: redis
  redis:
    addr: redis:6379
auth:
  delay: 250ms
  verify_signatures: true
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Contract.Backend != contract.BackendRedis || cfg.Contract.Redis.Addr != "redis:6379" {
		t.Errorf("unexpected contract config: %+v", cfg.Contract)
	}
	if cfg.Contract.Redis.KeyPrefix != "loyaltynft:" {
		t.Errorf("expected default key prefix to survive, got %q", cfg.Contract.Redis.KeyPrefix)
	}
	if cfg.Auth.Delay != 250*time.Millisecond || !cfg.Auth.VerifySignatures {
		t.Errorf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Auth.DurationDays != 30 {
		t.Errorf("expected default duration 30, got %d", cfg.Auth.DurationDays)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8090 || cfg.Contract.Backend != contract.BackendMemory {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if !cfg.Records.Reconcile {
		t.Error("expected reconcile on by default")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [1,2"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"LOYALTYNFT_PORT":              "7000",
		"LOYALTYNFT_BACKEND":           "badger",
		"LOYALTYNFT_BADGER_PATH":       "/var/lib/nft",
		"LOYALTYNFT_CHAIN_ID":          "11155111",
		"LOYALTYNFT_VERIFY_SIGNATURES": "true",
		"LOYALTYNFT_PRIVATE_KEY":       "0xabc",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}
	if cfg.Server.Port != 7000 || cfg.Contract.Backend != "badger" || cfg.Contract.Badger.Path != "/var/lib/nft" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Contract.ChainID != 11155111 || !cfg.Auth.VerifySignatures || cfg.Wallet.PrivateKey != "0xabc" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestApplyEnvReportsAllBadValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"LOYALTYNFT_PORT":              "eighty",
		"LOYALTYNFT_CHAIN_ID":          "main",
		"LOYALTYNFT_VERIFY_SIGNATURES": "maybe",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"PORT", "CHAIN_ID", "VERIFY_SIGNATURES"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("expected %s in error, got %v", name, err)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Contract.Backend = "etcd"
	cfg.Log.Level = "loud"
	cfg.Server.Port = 70000
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"etcd", "loud", "70000"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if err := Default().ApplyEnv(noEnv); err != nil {
		t.Errorf("empty env should apply cleanly: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("LOYALTYNFT_TEST_DOTENV=from-file\n"), 0o644)
	t.Setenv("LOYALTYNFT_TEST_DOTENV", "")
	os.Unsetenv("LOYALTYNFT_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error: %v", err)
	}
	if got := os.Getenv("LOYALTYNFT_TEST_DOTENV"); got != "from-file" {
		t.Errorf("expected value from .env, got %q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Webhook.URL = "http://hooks.local/nft"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Webhook.URL != cfg.Webhook.URL || got.Auth.Delay != cfg.Auth.Delay {
		t.Errorf("round trip mismatch: %+v", got.Webhook)
	}
}
