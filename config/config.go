package config

import (
	"os"
	"strconv"
	"time"

	"ticket-marketplace/internal/gateway/paylink"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	ScanPort    string
	PublicURL   string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (buyer pushes)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string

	// Payment provider configuration
	Provider          string
	Paylink           paylink.Config
	WebhookHMACKey    string
	WebhookSecretHash string

	// Reconciliation configuration
	PollInterval    time.Duration
	PollMaxAttempts int
	PurchaseHoldTTL time.Duration
	ExpirySweep     time.Duration
	SessionTTL      time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		ScanPort:    getEnv("SCAN_PORT", "8091"),
		PublicURL:   getEnv("PUBLIC_URL", "http://127.0.0.1:"+getEnv("PORT", "8090")),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "ticket-marketplace"),

		// Provider
		Provider: getEnv("PAYMENT_PROVIDER", "sandbox"),
		Paylink: paylink.Config{
			BaseURL:     getEnv("PAYLINK_BASE_URL", ""),
			MerchantID:  getEnv("PAYLINK_MERCHANT_ID", ""),
			ClientID:    getEnv("PAYLINK_CLIENT_ID", ""),
			ClientKey:   getEnv("PAYLINK_CLIENT_KEY", ""),
			HMACKey:     getEnv("PAYLINK_HMAC_KEY", ""),
			PNSubKey:    getEnv("PAYLINK_PN_SUBKEY", ""),
			PNUUID:      getEnv("PAYLINK_PN_UUID", "ticket-marketplace"),
			PNChannel:   getEnv("PAYLINK_PN_CHANNEL", "paylink-notifications"),
			PNCipherKey: getEnv("PAYLINK_PN_CIPHERKEY", ""),
			SessionTTL:  getEnvAsDuration("SESSION_TTL", "10m"),
		},
		WebhookHMACKey:    getEnv("WEBHOOK_HMAC_KEY", ""),
		WebhookSecretHash: getEnv("WEBHOOK_SECRET_HASH", ""),

		// Reconciliation
		PollInterval:    getEnvAsDuration("POLL_INTERVAL", "2s"),
		PollMaxAttempts: getEnvAsInt("POLL_MAX_ATTEMPTS", 10),
		PurchaseHoldTTL: getEnvAsDuration("PURCHASE_HOLD_TTL", "15m"),
		ExpirySweep:     getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", "1m"),
		SessionTTL:      getEnvAsDuration("SESSION_TTL", "10m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
