package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Retry    RetryConfig
	Stream   StreamConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	LLMLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	JWTSecret    string
}

type AIConfig struct {
	Provider        string // "gemini" or "ollama"
	FastModel       string
	ProModel        string
	OllamaBaseURL   string
	Temperature     float32
	MaxOutputTokens int32
}

// RetryConfig feeds llm.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

type StreamConfig struct {
	// Timeout bounds one whole pipeline run, upstream calls included.
	Timeout      time.Duration
	HistoryLimit int
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	provider := getEnv("LLM_PROVIDER", "gemini")
	fastModel, proModel := "gemini-2.5-flash", "gemini-2.5-pro"
	if provider == "ollama" {
		fastModel, proModel = "llama3", "llama3"
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			LLMLogFilePath:     getEnv("LLM_LOG_FILE_PATH", "llm.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			JWTSecret:    getEnv("JWT_SECRET", ""),
		},
		Ai: AIConfig{
			Provider:        provider,
			FastModel:       getEnv("LLM_FAST_MODEL", fastModel),
			ProModel:        getEnv("LLM_PRO_MODEL", proModel),
			OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			Temperature:     getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			MaxOutputTokens: int32(getEnvAsInt("LLM_MAX_OUTPUT_TOKENS", 4096)),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("LLM_RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("LLM_RETRY_BASE_DELAY", 300*time.Millisecond),
		},
		Stream: StreamConfig{
			Timeout:      getEnvAsDuration("STREAM_TIMEOUT", 3*time.Minute),
			HistoryLimit: getEnvAsInt("STREAM_HISTORY_LIMIT", 20),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvAsBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float32) float32 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 32); err == nil {
		return float32(value)
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("500ms", "2m").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
