package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the backend API and the console
type Config struct {
	Port              string // Backend API listen port
	ConsolePort       string // Console (browser UI) listen port
	BackendURL        string // Base URL the console and CLI use to reach the backend API
	DatabaseURL       string // mysql DSN or postgres:// URL for the email store
	AppName           string
	Version           string
	LogLevel          string
	OllamaHost        string // Ollama server, spoken to through its OpenAI-compatible /v1 API
	OllamaModel       string
	OllamaAPIKey      string // Only needed when Ollama sits behind an authenticating proxy
	AnalysisTimeout   int    // LLM evaluation timeout in seconds
	LabelingGuidePath string // Markdown guide embedded into the analysis system prompt
	PromptCacheTTL    int    // Minutes the rendered system prompt is cached
	ConsoleTimezone   string // IANA zone used to display parsed email dates
	MaxUploadMB       int
	EnableSwagger     bool   // Serve /swagger/* on the backend API
	APIToken          string // Bearer token required on mutating API routes; empty disables the check
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		ConsolePort:       getEnv("CONSOLE_PORT", "8081"),
		BackendURL:        getEnv("BACKEND_URL", "http://localhost:8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AppName:           getEnv("APP_NAME", "EML Parser API"),
		Version:           getEnv("VERSION", "0.1.0"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		OllamaHost:        getEnv("OLLAMA_HOST", "http://ollama:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama3"),
		OllamaAPIKey:      os.Getenv("OLLAMA_API_KEY"),
		AnalysisTimeout:   getEnvInt("ANALYSIS_TIMEOUT", 120),
		LabelingGuidePath: getEnv("LABELING_GUIDE_PATH", "labeling_guide.md"),
		PromptCacheTTL:    getEnvInt("PROMPT_CACHE_TTL_MINUTES", 60),
		ConsoleTimezone:   getEnv("CONSOLE_TIMEZONE", "UTC"),
		MaxUploadMB:       getEnvInt("MAX_UPLOAD_MB", 25),
		EnableSwagger:     getEnvBool("ENABLE_SWAGGER", true),
		APIToken:          os.Getenv("API_TOKEN"),
	}

	return config
}

// Location resolves ConsoleTimezone, falling back to UTC for unknown zones
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ConsoleTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output for the named component
func (c *Config) SetupLogger(component string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "mailtriage").
		Str("component", component).
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
