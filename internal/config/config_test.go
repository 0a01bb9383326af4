package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
storage:
  driver: memory
scheduler:
  spec: "@every 30s"
engine:
  max_bid_retries: 3
  wallet_timeout: 2s
admin:
  ids: ["admin-1", "admin-2"]
wallet:
  seed: ["alice:1000", "bob:250.50"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "@every 30s", cfg.Scheduler.Spec)
	assert.Equal(t, 3, cfg.Engine.MaxBidRetries)
	assert.Equal(t, 2*time.Second, cfg.Engine.WalletTimeout)
	assert.Equal(t, []string{"admin-1", "admin-2"}, cfg.Admin.IDs)

	seed, err := cfg.Wallet.SeedBalances()
	require.NoError(t, err)
	assert.Equal(t, "1000", seed["alice"].String())
	assert.Equal(t, "250.5", seed["bob"].String())

	// untouched keys keep their defaults
	assert.Equal(t, 5, cfg.Engine.MaxSettleRetries)
	assert.Equal(t, 3*time.Second, cfg.Engine.NotifyTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
}

func TestLoadFromFileEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: mysql\n"), 0o600))

	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("INSTANCE_ID", "node-7")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "node-7", cfg.Instance.ID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.Engine.MaxBidRetries = 0 }, wantErr: true},
		{name: "empty schedule", mutate: func(c *Config) { c.Scheduler.Spec = "" }, wantErr: true},
		{name: "malformed seed", mutate: func(c *Config) { c.Wallet.Seed = []string{"alice"} }, wantErr: true},
		{name: "negative seed", mutate: func(c *Config) { c.Wallet.Seed = []string{"alice:-5"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Storage:   StorageConfig{Driver: StorageMemory},
				Scheduler: SchedulerConfig{Spec: "@every 1m"},
				Engine:    EngineConfig{MaxBidRetries: 5, MaxSettleRetries: 5},
			}
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
