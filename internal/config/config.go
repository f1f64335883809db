// Package config loads server and table configuration from HCL files,
// applying defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ServerConfig is the complete process configuration.
type ServerConfig struct {
	Server ServerSettings `hcl:"server,block"`
	Tables []TableConfig  `hcl:"table,block"`
}

// ServerSettings contains process-level configuration.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
	DataDir  string `hcl:"data_dir,optional"`
}

// TableConfig defines one table's rules. Everything is immutable for
// the life of a session except the time and rake settings, which may be
// updated while a session is active.
type TableConfig struct {
	Name         string `hcl:"name,label"`
	GameType     string `hcl:"game_type,optional"`     // texas-holdem
	BettingLimit string `hcl:"betting_limit,optional"` // no-limit, pot-limit, fixed-limit
	SmallBlind   int    `hcl:"small_blind"`
	BigBlind     int    `hcl:"big_blind"`
	MinPlayers   int    `hcl:"min_players,optional"`
	MaxPlayers   int    `hcl:"max_players,optional"`
	BuyInMin     int    `hcl:"buy_in_min,optional"`
	BuyInMax     int    `hcl:"buy_in_max,optional"`
	AutoStart    bool   `hcl:"auto_start,optional"`
	MaxRebuys    int    `hcl:"max_rebuys,optional"`

	ActionTimeSecs     int `hcl:"action_time_secs,optional"`
	WarningTimeSecs    int `hcl:"warning_time_secs,optional"`
	TimeBankSecs       int `hcl:"time_bank_secs,optional"`
	DisconnectGraceSec int `hcl:"disconnect_grace_secs,optional"`
	HandStartDelaySec  int `hcl:"hand_start_delay_secs,optional"`
	HandBreakSecs      int `hcl:"hand_break_secs,optional"`

	RakePercent      float64 `hcl:"rake_percent,optional"`
	RakeCap          int     `hcl:"rake_cap,optional"`
	RakeMinPot       int     `hcl:"rake_min_pot,optional"`
	RakeNoFlopNoDrop bool    `hcl:"rake_no_flop_no_drop,optional"`
}

// ActionTime returns the per-action time limit.
func (tc TableConfig) ActionTime() time.Duration {
	return time.Duration(tc.ActionTimeSecs) * time.Second
}

// WarningTime returns the lead before expiry at which a warning fires.
func (tc TableConfig) WarningTime() time.Duration {
	return time.Duration(tc.WarningTimeSecs) * time.Second
}

// TimeBank returns each player's starting time bank.
func (tc TableConfig) TimeBank() time.Duration {
	return time.Duration(tc.TimeBankSecs) * time.Second
}

// DisconnectGrace returns how long a disconnected player is protected.
func (tc TableConfig) DisconnectGrace() time.Duration {
	return time.Duration(tc.DisconnectGraceSec) * time.Second
}

// HandBreak returns the pause between consecutive hands.
func (tc TableConfig) HandBreak() time.Duration {
	return time.Duration(tc.HandBreakSecs) * time.Second
}

// HandStartDelay returns the delay before an auto-started first hand.
func (tc TableConfig) HandStartDelay() time.Duration {
	return time.Duration(tc.HandStartDelaySec) * time.Second
}

// Default returns the built-in configuration used when no file exists.
func Default() *ServerConfig {
	cfg := &ServerConfig{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
			DataDir:  "data",
		},
		Tables: []TableConfig{{
			Name:       "main",
			SmallBlind: 1,
			BigBlind:   2,
			AutoStart:  true,
		}},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads an HCL configuration file. A missing file yields the
// defaults rather than an error.
func Load(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %s", filename, diags.Error())
	}

	var cfg ServerConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %s", filename, diags.Error())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = "data"
	}
	for i := range c.Tables {
		t := &c.Tables[i]
		if t.GameType == "" {
			t.GameType = "texas-holdem"
		}
		if t.BettingLimit == "" {
			t.BettingLimit = "no-limit"
		}
		if t.MinPlayers == 0 {
			t.MinPlayers = 2
		}
		if t.MaxPlayers == 0 {
			t.MaxPlayers = 9
		}
		if t.BuyInMin == 0 {
			t.BuyInMin = t.BigBlind * 50
		}
		if t.BuyInMax == 0 {
			t.BuyInMax = t.BigBlind * 200
		}
		if t.ActionTimeSecs == 0 {
			t.ActionTimeSecs = 30
		}
		if t.WarningTimeSecs == 0 {
			t.WarningTimeSecs = 10
		}
		if t.TimeBankSecs == 0 {
			t.TimeBankSecs = 60
		}
		if t.DisconnectGraceSec == 0 {
			t.DisconnectGraceSec = 120
		}
		if t.HandBreakSecs == 0 {
			t.HandBreakSecs = 5
		}
	}
}

// Validate rejects configurations that cannot run a table.
func (c *ServerConfig) Validate() error {
	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table must be configured")
	}
	for _, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("table name is required")
		}
		if t.SmallBlind <= 0 || t.BigBlind <= 0 {
			return fmt.Errorf("table %s: blinds must be positive", t.Name)
		}
		if t.SmallBlind >= t.BigBlind {
			return fmt.Errorf("table %s: small blind %d must be below big blind %d", t.Name, t.SmallBlind, t.BigBlind)
		}
		if t.MinPlayers < 2 {
			return fmt.Errorf("table %s: min_players must be at least 2", t.Name)
		}
		if t.MaxPlayers > 9 || t.MaxPlayers < t.MinPlayers {
			return fmt.Errorf("table %s: max_players must be between min_players and 9", t.Name)
		}
		if t.BuyInMin > t.BuyInMax {
			return fmt.Errorf("table %s: buy_in_min exceeds buy_in_max", t.Name)
		}
		switch t.BettingLimit {
		case "no-limit", "pot-limit", "fixed-limit":
		default:
			return fmt.Errorf("table %s: unknown betting_limit %q", t.Name, t.BettingLimit)
		}
		if t.RakePercent < 0 || t.RakePercent > 10 {
			return fmt.Errorf("table %s: rake_percent must be 0-10", t.Name)
		}
	}
	return nil
}
