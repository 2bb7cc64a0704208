package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the runtime settings of the API process
type Config struct {
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`

	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Chain    ChainConfig    `toml:"chain"`
	Auth     AuthConfig     `toml:"auth"`
	Ledger   LedgerConfig   `toml:"ledger"`
}

type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	SSLMode  string `toml:"ssl_mode"`
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

type RedisConfig struct {
	Addr      string        `toml:"addr"`
	Password  string        `toml:"password"`
	DB        int           `toml:"db"`
	OracleTTL time.Duration `toml:"oracle_ttl"`

	// Requests per minute allowed per wallet on bridge endpoints. 0 disables.
	BridgeRateLimit int `toml:"bridge_rate_limit"`
}

type ChainConfig struct {
	RPCURL        string `toml:"rpc_url"`
	TokenContract string `toml:"token_contract"`
	VaultContract string `toml:"vault_contract"`
}

type AuthConfig struct {
	JWTSecret      string   `toml:"jwt_secret"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type LedgerConfig struct {
	// Daily per-wallet mint ceiling in whole tokens.
	DailyMintLimit  decimal.Decimal `toml:"daily_mint_limit"`
	StartingBalance decimal.Decimal `toml:"starting_balance"`
	TradingFeeRate  decimal.Decimal `toml:"trading_fee_rate"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Port:     "8080",
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "mantle_estate",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			OracleTTL:       5 * time.Second,
			BridgeRateLimit: 30,
		},
		Auth: AuthConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Ledger: LedgerConfig{
			DailyMintLimit:  decimal.NewFromInt(10000),
			StartingBalance: decimal.Zero,
			TradingFeeRate:  decimal.NewFromFloat(0.001),
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file named by
// CONFIG_FILE, a .env file if present, and finally environment variables.
// The result has not been validated.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	setStr(&cfg.Port, "PORT")
	setStr(&cfg.LogLevel, "LOG_LEVEL")

	setStr(&cfg.Database.Host, "DB_HOST")
	setStr(&cfg.Database.Port, "DB_PORT")
	setStr(&cfg.Database.User, "DB_USER")
	setStr(&cfg.Database.Password, "DB_PASSWORD")
	setStr(&cfg.Database.Name, "DB_NAME")
	setStr(&cfg.Database.SSLMode, "DB_SSLMODE")

	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	if err := setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&cfg.Redis.BridgeRateLimit, "BRIDGE_RATE_LIMIT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Redis.OracleTTL, "ORACLE_CACHE_TTL"); err != nil {
		return err
	}

	setStr(&cfg.Chain.RPCURL, "ETH_RPC_URL")
	setStr(&cfg.Chain.TokenContract, "TOKEN_CONTRACT")
	setStr(&cfg.Chain.VaultContract, "VAULT_CONTRACT")

	setStr(&cfg.Auth.JWTSecret, "JWT_SECRET")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Auth.AllowedOrigins = strings.Split(v, ",")
	}

	if err := setDecimal(&cfg.Ledger.DailyMintLimit, "DAILY_MINT_LIMIT"); err != nil {
		return err
	}
	if err := setDecimal(&cfg.Ledger.StartingBalance, "STARTING_BALANCE"); err != nil {
		return err
	}
	return setDecimal(&cfg.Ledger.TradingFeeRate, "TRADING_FEE_RATE")
}

// Validate checks the configuration for values the services cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.Chain.TokenContract != "" && !common.IsHexAddress(c.Chain.TokenContract) {
		errs = append(errs, fmt.Errorf("invalid token contract address %q", c.Chain.TokenContract))
	}
	if c.Chain.VaultContract != "" && !common.IsHexAddress(c.Chain.VaultContract) {
		errs = append(errs, fmt.Errorf("invalid vault contract address %q", c.Chain.VaultContract))
	}
	if !c.Ledger.DailyMintLimit.IsPositive() {
		errs = append(errs, errors.New("daily mint limit must be positive"))
	}
	if c.Ledger.StartingBalance.IsNegative() {
		errs = append(errs, errors.New("starting balance cannot be negative"))
	}
	if c.Ledger.TradingFeeRate.IsNegative() || c.Ledger.TradingFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("trading fee rate must be in [0, 1)"))
	}
	if c.Redis.BridgeRateLimit < 0 {
		errs = append(errs, errors.New("bridge rate limit cannot be negative"))
	}
	return errors.Join(errs...)
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setDecimal(dst *decimal.Decimal, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}
