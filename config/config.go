package config

import (
	"os"
	"strconv"
	"time"

	"ticket-acquisition/internal/payment/orberpay"
	"ticket-acquisition/internal/payment/swiftpay"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (admission push channel)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string

	// External collaborators
	AdmissionBaseURL string
	PurchaseBaseURL  string
	PurchaseToken    string

	// Payment providers
	SwiftPay swiftpay.Config
	OrberPay orberpay.Config

	// Admission policy. The threshold and timer values mirror the admission
	// service's own policy and are tunable per deployment.
	HighDemandThreshold  int
	PositionPollInterval time.Duration
	LostPositionRejoins  int

	// Processing-slot warning timers
	ProcessingWarningDelay     time.Duration
	ProcessingWarningCountdown time.Duration
	ProcessingWindow           time.Duration

	// Selection store
	SelectionTTL time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "acquisition-service"),

		// Collaborators
		AdmissionBaseURL: getEnv("ADMISSION_BASE_URL", "http://localhost:8091"),
		PurchaseBaseURL:  getEnv("PURCHASE_BASE_URL", "http://localhost:8092"),
		PurchaseToken:    getEnv("PURCHASE_TOKEN", ""),

		// SwiftPay (synchronous redirect/callback provider, minor units)
		SwiftPay: swiftpay.Config{
			BaseURL:     getEnv("SWIFTPAY_BASE_URL", ""),
			MerchantID:  getEnv("SWIFTPAY_MERCHANT_ID", ""),
			APIKey:      getEnv("SWIFTPAY_API_KEY", ""),
			HMACKey:     getEnv("SWIFTPAY_HMAC_KEY", ""),
			PNSubKey:    getEnv("SWIFTPAY_PN_SUBKEY", ""),
			PNUUID:      getEnv("SWIFTPAY_PN_UUID", "acquisition-service"),
			PNCipherKey: getEnv("SWIFTPAY_PN_CIPHERKEY", ""),
		},

		// OrberPay (asynchronous create-order/capture provider, major units)
		OrberPay: orberpay.Config{
			BaseURL:      getEnv("ORBERPAY_BASE_URL", ""),
			TokenURL:     getEnv("ORBERPAY_TOKEN_URL", ""),
			ClientID:     getEnv("ORBERPAY_CLIENT_ID", ""),
			ClientSecret: getEnv("ORBERPAY_CLIENT_SECRET", ""),
			BrandName:    getEnv("ORBERPAY_BRAND_NAME", "Ticket Marketplace"),
			ReturnURL:    getEnv("ORBERPAY_RETURN_URL", ""),
		},

		// Admission policy
		HighDemandThreshold:  getEnvAsInt("HIGH_DEMAND_THRESHOLD", 10),
		PositionPollInterval: getEnvAsDuration("POSITION_POLL_INTERVAL", "5s"),
		LostPositionRejoins:  getEnvAsInt("LOST_POSITION_REJOINS", 3),

		// Timers
		ProcessingWarningDelay:     getEnvAsDuration("PROCESSING_WARNING_DELAY", "30s"),
		ProcessingWarningCountdown: getEnvAsDuration("PROCESSING_WARNING_COUNTDOWN", "30s"),
		ProcessingWindow:           getEnvAsDuration("PROCESSING_WINDOW", "60s"),

		// Selection store
		SelectionTTL: getEnvAsDuration("SELECTION_TTL", "24h"),

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
