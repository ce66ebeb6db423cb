/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l4
Tier:        L4
Logic:       Gateway configuration — warehouse credentials, HTTP/WS
             server settings, batching/quota/nonce knobs.
Root Cause:  Sprint task G011 — unify config across event store,
             event logger, identity, and deployment gateway.
Context:     Single process-scoped read-only Config acquired at
             startup (design note: global pepper & registry-of-
             templates pattern).
Suitability: L4 model used for security-critical config design.
──────────────────────────────────────────────────────────────
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all gateway configuration values, loaded once at startup.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Warehouse (Snowflake) credentials — spec §6 env vars.
	Account        string
	Username       string
	Password       string
	PrivateKeyPath string
	PrivateKeyPass string
	Warehouse      string
	Database       string
	Schema         string
	Role           string

	// SF_CLI is the path to the CLI binary used by deployment tooling.
	SFCLI string

	// ActivationGatewayURL overrides the activation-link base URL.
	ActivationGatewayURL string

	// Redis backs the nonce replay ledger.
	RedisURL string

	// Statement / session behavior
	StatementTimeout    time.Duration
	RowCapDefault       int
	RowCapCeiling       int
	QueryTagApp         string

	// Event logger batching (C2)
	LogBatchMaxEvents int
	LogBatchWindow    time.Duration
	LogRateThreshold  int // events/minute before switching to batch mode

	// Token / identity (C3)
	TokenPepper      string
	TokenTTLDefault  time.Duration
	NonceWindow      time.Duration

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int
	RateLimitKeyMode string // "user" or "user_tool"

	// Deployment gateway (C8)
	StageMaxBytes int64
	LeaseDefaultTTL time.Duration

	// Router budgets (C7)
	Tier2BudgetMs int
	Tier3BudgetMs int

	// Schema contract
	SchemaContractPath string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 15)
	stmtTimeoutSec := getEnvInt("STATEMENT_TIMEOUT_SEC", 90)

	cfg := &Config{
		Addr:            getEnv("PORT_ADDR", ":"+getEnv("PORT", "8080")),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		Account:        getEnv("SNOWFLAKE_ACCOUNT", ""),
		Username:       getEnv("SNOWFLAKE_USERNAME", ""),
		Password:       getEnv("SNOWFLAKE_PASSWORD", ""),
		PrivateKeyPath: getEnv("SF_PK_PATH", ""),
		PrivateKeyPass: getEnv("SF_PK_PASSPHRASE", ""),
		Warehouse:      getEnv("SNOWFLAKE_WAREHOUSE", ""),
		Database:       getEnv("SNOWFLAKE_DATABASE", ""),
		Schema:         getEnv("SNOWFLAKE_SCHEMA", ""),
		Role:           getEnv("SNOWFLAKE_ROLE", ""),

		SFCLI:                getEnv("SF_CLI", "sf"),
		ActivationGatewayURL: getEnv("ACTIVATION_GATEWAY_URL", "https://activate.internal"),

		RedisURL: getEnv("REDIS_URL", "redis://redis:6379"),

		StatementTimeout: time.Duration(stmtTimeoutSec) * time.Second,
		RowCapDefault:    getEnvInt("ROW_CAP_DEFAULT", 10000),
		RowCapCeiling:    getEnvInt("ROW_CAP_CEILING", 10000),
		QueryTagApp:      getEnv("QUERY_TAG_APP", "mcp-gateway"),

		LogBatchMaxEvents: getEnvInt("LOG_BATCH_MAX_EVENTS", 1000),
		LogBatchWindow:    time.Duration(getEnvInt("LOG_BATCH_WINDOW_SEC", 5)) * time.Second,
		LogRateThreshold:  getEnvInt("LOG_RATE_THRESHOLD_PER_MIN", 10),

		TokenPepper:     getEnv("TOKEN_PEPPER", ""),
		TokenTTLDefault: time.Duration(getEnvInt("TOKEN_TTL_DEFAULT_HOURS", 24*30)) * time.Hour,
		NonceWindow:     time.Duration(getEnvInt("NONCE_WINDOW_MINUTES", 10)) * time.Minute,

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 60),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 10),
		RateLimitKeyMode: getEnv("RATE_LIMIT_KEY_MODE", "user_tool"),

		StageMaxBytes:   int64(getEnvInt("STAGE_MAX_BYTES", 10*1024*1024)),
		LeaseDefaultTTL: time.Duration(getEnvInt("LEASE_DEFAULT_TTL_SEC", 900)) * time.Second,

		Tier2BudgetMs: getEnvInt("TIER2_BUDGET_MS", 10000),
		Tier3BudgetMs: getEnvInt("TIER3_BUDGET_MS", 45000),

		SchemaContractPath: getEnv("SCHEMA_CONTRACT_PATH", "schema_contract.json"),
	}
	return cfg
}

// Validate returns a config error if required credentials are missing.
// Either password auth or key-pair auth must be fully specified.
func (c *Config) Validate() error {
	if c.Account == "" || c.Username == "" {
		return fmt.Errorf("config: SNOWFLAKE_ACCOUNT and SNOWFLAKE_USERNAME are required")
	}
	if c.Password == "" && c.PrivateKeyPath == "" {
		return fmt.Errorf("config: one of SNOWFLAKE_PASSWORD or SF_PK_PATH is required")
	}
	if c.TokenPepper == "" && !c.IsDevelopment() {
		return fmt.Errorf("config: TOKEN_PEPPER is required outside development")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
