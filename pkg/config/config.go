package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for a swapd instance.
// All values are environment-driven with sensible dev defaults.
type Config struct {
	ServiceName string // e.g. "swapd"
	Env         string // "dev", "uat", "prod"
	LogLevel    string // "debug", "info", ...
	Port        int    // HTTP API port
	MetricsPort int    // prometheus + websocket stream port

	NATSURL     string // e.g. nats://localhost:4222
	RedisAddr   string // e.g. localhost:6379
	RedisDB     int
	DatabaseURL string // optional Postgres DSN for the execution audit trail

	MakerBaseURL  string // market-maker RFQ/handshake venue
	StatusBaseURL string // trade status lookup; defaults to the maker venue

	AWSRegion       string
	MakerSecretName string // Secrets Manager entry holding the maker API key
	MakerAPIKey     string // dev fallback when no secret name is configured
	SecretCacheTTL  time.Duration

	PollInterval    time.Duration // status poll cadence
	PollMaxDuration time.Duration // 0 = poll until terminal or reset
	HistoryCapacity int

	// KeepPollingAfterReset keeps the background status watch alive when the
	// user abandons a swap from the UI, so the eventual remote outcome still
	// lands in history.
	KeepPollingAfterReset bool

	MakerRPS   int
	MakerBurst int
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName: GetEnv("SERVICE_NAME", "swapd"),
		Env:         GetEnv("ENV", "dev"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		Port:        GetEnvInt("SWAPD_PORT", 9030),
		MetricsPort: GetEnvInt("SWAPD_METRICS_PORT", 9031),

		NATSURL:     GetEnv("NATS_URL", "nats://localhost:4222"),
		RedisAddr:   GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     GetEnvInt("REDIS_DB", 0),
		DatabaseURL: GetEnv("DATABASE_URL", ""),

		MakerBaseURL:  GetEnv("MAKER_BASE_URL", "http://maker.local"),
		StatusBaseURL: GetEnv("STATUS_BASE_URL", ""),

		AWSRegion:       GetEnv("AWS_REGION", "us-east-2"),
		MakerSecretName: GetEnv("MAKER_SECRET_NAME", ""),
		MakerAPIKey:     GetEnv("MAKER_API_KEY", ""),
		SecretCacheTTL:  GetEnvDuration("SECRET_CACHE_TTL", 30*time.Minute),

		PollInterval:    GetEnvDuration("POLL_INTERVAL", 5*time.Second),
		PollMaxDuration: GetEnvDuration("POLL_MAX_DURATION", 0),
		HistoryCapacity: GetEnvInt("HISTORY_CAPACITY", 50),

		KeepPollingAfterReset: GetEnvBool("KEEP_POLLING_AFTER_RESET", false),

		MakerRPS:   GetEnvInt("MAKER_RPS", 5),
		MakerBurst: GetEnvInt("MAKER_BURST", 10),
	}
}
