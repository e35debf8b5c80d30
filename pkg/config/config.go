// Package config loads service configuration from environment variables,
// with explicit defaults for local development.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-sourced setting the service needs.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL selects the Event Store backend by scheme: "postgres://"
	// for lib/pq, anything else (including a bare file path) for SQLite.
	DatabaseURL string

	EVMEnabled      bool
	EVMRPCURL       string
	EVMContractAddr string
	EVMSigningKey   string

	SolanaEnabled    bool
	SolanaRPCURL     string
	SolanaProgramID  string
	SolanaSigningKey string

	BatchSize        int
	AnchorCronSpec   string
	SubstrateTimeout time.Duration

	ExportSigningKeyID string

	// KeystorePath is where the local KMS keeps its versioned symmetric
	// keys, used to encrypt substrate signing keys at rest.
	KeystorePath string

	// JWTSigningSecret is consumed by the out-of-scope edge authentication
	// collaborator; this service only threads it through for local dev
	// wiring, it never validates tokens itself.
	JWTSigningSecret string

	OTELEnabled  bool
	OTELEndpoint string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Port:     getenv("PORT", "8080"),
		LogLevel: getenv("LOG_LEVEL", "INFO"),

		DatabaseURL: getenv("DATABASE_URL", "ledger.sqlite"),

		EVMEnabled:      getenvBool("EVM_ENABLED", true),
		EVMRPCURL:       getenv("EVM_RPC_URL", "http://localhost:8545"),
		EVMContractAddr: getenv("EVM_CONTRACT_ADDRESS", ""),
		EVMSigningKey:   getenv("EVM_SIGNING_KEY", ""),

		SolanaEnabled:    getenvBool("SOLANA_ENABLED", true),
		SolanaRPCURL:     getenv("SOLANA_RPC_URL", "http://localhost:8899"),
		SolanaProgramID:  getenv("SOLANA_PROGRAM_ID", ""),
		SolanaSigningKey: getenv("SOLANA_SIGNING_KEY", ""),

		BatchSize:        getenvInt("ANCHOR_BATCH_SIZE", 1000),
		AnchorCronSpec:   getenv("ANCHOR_CRON_SPEC", "@hourly"),
		SubstrateTimeout: getenvDuration("SUBSTRATE_TIMEOUT", 30*time.Second),

		ExportSigningKeyID: getenv("EXPORT_SIGNING_KEY_ID", "export-v1"),
		KeystorePath:       getenv("KEYSTORE_PATH", "data/keystore.json"),

		JWTSigningSecret: getenv("JWT_SIGNING_SECRET", ""),

		OTELEnabled:  getenvBool("OTEL_ENABLED", false),
		OTELEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
