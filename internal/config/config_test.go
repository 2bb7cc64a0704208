package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "secret"
	return cfg
}

func TestDefaultsNeedSecret(t *testing.T) {
	cfg := Defaults()
	assert.ErrorContains(t, cfg.Validate(), "jwt secret is required")

	cfg = validConfig()
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Ledger.DailyMintLimit.Equal(decimal.NewFromInt(10000)))
	assert.True(t, cfg.Ledger.StartingBalance.IsZero())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad token contract", func(c *Config) { c.Chain.TokenContract = "0x123" }, "invalid token contract"},
		{"bad vault contract", func(c *Config) { c.Chain.VaultContract = "vault" }, "invalid vault contract"},
		{"zero mint limit", func(c *Config) { c.Ledger.DailyMintLimit = decimal.Zero }, "daily mint limit"},
		{"negative starting balance", func(c *Config) { c.Ledger.StartingBalance = decimal.NewFromInt(-1) }, "starting balance"},
		{"fee rate of one", func(c *Config) { c.Ledger.TradingFeeRate = decimal.NewFromInt(1) }, "trading fee rate"},
		{"negative rate limit", func(c *Config) { c.Redis.BridgeRateLimit = -1 }, "bridge rate limit"},
		{"missing port", func(c *Config) { c.Port = "" }, "port is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestLoadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = "9000"

[redis]
oracle_ttl = "30s"

[chain]
token_contract = "0x00000000000000000000000000000000000000aa"

[ledger]
daily_mint_limit = "500"
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")
	t.Setenv("STARTING_BALANCE", "250.5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Redis.OracleTTL)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.Chain.TokenContract)
	assert.True(t, cfg.Ledger.DailyMintLimit.Equal(decimal.NewFromInt(500)))
	assert.True(t, cfg.Ledger.StartingBalance.Equal(decimal.RequireFromString("250.5")))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Auth.AllowedOrigins)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TRADING_FEE_RATE", "abc")

	_, err := Load()
	assert.ErrorContains(t, err, "TRADING_FEE_RATE")

	t.Setenv("TRADING_FEE_RATE", "")
	t.Setenv("ORACLE_CACHE_TTL", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "ORACLE_CACHE_TTL")
}
