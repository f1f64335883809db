package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Server.Address)
	require.Len(t, cfg.Tables, 1)
	assert.Equal(t, "main", cfg.Tables[0].Name)
	assert.Equal(t, 2, cfg.Tables[0].MinPlayers)
	assert.Equal(t, 30*time.Second, cfg.Tables[0].ActionTime())
}

func TestLoadParsesTableBlocks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "server.hcl")
	content := `
server {
  address   = "0.0.0.0"
  port      = 9000
  log_level = "debug"
}

table "high-stakes" {
  betting_limit = "pot-limit"
  small_blind   = 25
  big_blind     = 50
  max_players   = 6
  auto_start    = true

  rake_percent         = 5
  rake_cap             = 100
  rake_no_flop_no_drop = true
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	require.Len(t, cfg.Tables, 1)

	table := cfg.Tables[0]
	assert.Equal(t, "high-stakes", table.Name)
	assert.Equal(t, "pot-limit", table.BettingLimit)
	assert.Equal(t, 50, table.BigBlind)
	assert.Equal(t, 50*50, table.BuyInMin) // defaulted from big blind
	assert.True(t, table.RakeNoFlopNoDrop)
	assert.Equal(t, 120*time.Second, table.DisconnectGrace())
}

func TestValidateRejectsBadTables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*TableConfig)
	}{
		{"blinds inverted", func(tc *TableConfig) { tc.SmallBlind = 10; tc.BigBlind = 5 }},
		{"zero blind", func(tc *TableConfig) { tc.BigBlind = 0 }},
		{"too many seats", func(tc *TableConfig) { tc.MaxPlayers = 12 }},
		{"unknown limit", func(tc *TableConfig) { tc.BettingLimit = "spread-limit" }},
		{"rake too high", func(tc *TableConfig) { tc.RakePercent = 50 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg.Tables[0])
			assert.Error(t, cfg.Validate())
		})
	}
}
