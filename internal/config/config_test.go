package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/docflow-test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/tmp/docflow-test.db", cfg.Database.Path)
	assert.Equal(t, time.Hour, cfg.Sweeper.Interval)
	assert.Equal(t, 500, cfg.Sweeper.BatchLimit)
	assert.Equal(t, []string{"MANAGER", "DIRECTOR", "CEO"}, cfg.Approval.Default.Levels)
	assert.Equal(t, int64(50000), cfg.Approval.Default.ThresholdCents)
	assert.False(t, cfg.Approval.Default.AllowPartialPayment)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadPerCategoryPolicies(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/docflow-test.db
approval:
  policies:
    invoice:
      levels: [MANAGER, DIRECTOR]
      threshold_cents: 100000
      allow_partial_payment: true
    contract:
      levels: [DIRECTOR, CEO]
      threshold_cents: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	invoice, ok := cfg.Approval.Policies["invoice"]
	require.True(t, ok)
	assert.Equal(t, []string{"MANAGER", "DIRECTOR"}, invoice.Levels)
	assert.Equal(t, int64(100000), invoice.ThresholdCents)
	assert.True(t, invoice.AllowPartialPayment)

	contract, ok := cfg.Approval.Policies["contract"]
	require.True(t, ok)
	assert.Equal(t, int64(0), contract.ThresholdCents)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Path: "data/docflow.db"},
			Sweeper:  SweeperConfig{Interval: time.Hour, BatchLimit: 500},
			Approval: ApprovalConfig{
				Default: PolicyConfig{Levels: []string{"MANAGER"}, ThresholdCents: 50000},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "non-positive sweep interval",
			mutate:  func(c *Config) { c.Sweeper.Interval = 0 },
			wantErr: "sweeper.interval",
		},
		{
			name:    "empty default chain",
			mutate:  func(c *Config) { c.Approval.Default.Levels = nil },
			wantErr: "approval.default.levels",
		},
		{
			name: "unknown level in category policy",
			mutate: func(c *Config) {
				c.Approval.Policies = map[string]PolicyConfig{
					"invoice": {Levels: []string{"INTERN"}},
				}
			},
			wantErr: "unknown approval level",
		},
		{
			name: "negative category threshold",
			mutate: func(c *Config) {
				c.Approval.Policies = map[string]PolicyConfig{
					"invoice": {Levels: []string{"MANAGER"}, ThresholdCents: -1},
				}
			},
			wantErr: "threshold_cents",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLevelsAreCaseInsensitive(t *testing.T) {
	assert.NoError(t, validateLevels([]string{"manager", "Director", "CEO"}))
	assert.Error(t, validateLevels([]string{"vp"}))
}
