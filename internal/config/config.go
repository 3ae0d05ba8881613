// Package config provides environment configuration for the dialer engine.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// Responder settings
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	ResponderModel   string
	ResponderTimeout time.Duration
	SystemPrompt     string
	MaxHistoryTurns  int

	// Call scripts
	GreetingScript      string
	VoicemailScript     string
	CallbackOfferScript string
	NudgeScript         string

	// State machine settings
	GatherTimeout          time.Duration
	GatherMode             string
	MaxConsecutiveTimeouts int
	CommandRetryAttempts   int

	// Agent pool settings
	AgentWaitTimeout time.Duration
	WrapUpDuration   time.Duration

	// Scheduler settings
	SchedulerTickInterval time.Duration
	AbandonRateWindow     time.Duration
	DefaultAbandonCeiling float64
	DefaultMaxConcurrent  int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Responder
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		ResponderModel:   getEnv("RESPONDER_MODEL", ""),
		ResponderTimeout: getDurationEnv("RESPONDER_TIMEOUT", 10*time.Second),
		SystemPrompt:     getEnv("SYSTEM_PROMPT", "You are a courteous phone assistant. Keep answers short and conversational."),
		MaxHistoryTurns:  getIntEnv("MAX_HISTORY_TURNS", 20),

		// Scripts
		GreetingScript:      getEnv("GREETING_SCRIPT", "Hello! This is an automated assistant calling on behalf of your account. How can I help you today?"),
		VoicemailScript:     getEnv("VOICEMAIL_SCRIPT", "Sorry we missed you. Please call us back at your convenience."),
		CallbackOfferScript: getEnv("CALLBACK_OFFER_SCRIPT", "All of our agents are currently busy. We will call you back shortly. Goodbye."),
		NudgeScript:         getEnv("NUDGE_SCRIPT", "Are you still there?"),

		// State machine
		GatherTimeout:          getDurationEnv("GATHER_TIMEOUT", 8*time.Second),
		GatherMode:             getEnv("GATHER_MODE", "speech"),
		MaxConsecutiveTimeouts: getIntEnv("MAX_CONSECUTIVE_TIMEOUTS", 3),
		CommandRetryAttempts:   getIntEnv("COMMAND_RETRY_ATTEMPTS", 3),

		// Agent pool
		AgentWaitTimeout: getDurationEnv("AGENT_WAIT_TIMEOUT", 20*time.Second),
		WrapUpDuration:   getDurationEnv("WRAP_UP_DURATION", 30*time.Second),

		// Scheduler
		SchedulerTickInterval: getDurationEnv("SCHEDULER_TICK_INTERVAL", 5*time.Second),
		AbandonRateWindow:     getDurationEnv("ABANDON_RATE_WINDOW", time.Hour),
		DefaultAbandonCeiling: getFloatEnv("DEFAULT_ABANDON_CEILING", 0.03),
		DefaultMaxConcurrent:  getIntEnv("DEFAULT_MAX_CONCURRENT", 50),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
