package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	AppEnv   string

	CORSAllowedOrigins []string

	// per-IP limit on the public account routes; 0 disables
	AuthRateRPS   float64
	AuthRateBurst int

	DBDriver string
	DBDSN    string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// empty RedisAddr disables server-side refresh sessions
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ChatContextWindowSize int

	// AI provider
	AIProvider        string
	AIModel           string
	AITimeout         time.Duration
	AIPromptPrefix    string
	GeminiBaseURL     string
	GeminiAPIKey      string
	OllamaBaseURL     string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterSiteURL string
	OpenRouterAppName string

	// rabbitMQ, empty RabbitURL disables async turns
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int
}

func Load() Config {
	// a missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load(".env")

	driver := strings.ToLower(getenv("DB_DRIVER", "mysql"))

	// DSN demo：
	// app:apppass@tcp(127.0.0.1:3306)/canvas?charset=utf8mb4&parseTime=true&loc=Local
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		switch driver {
		case "postgres":
			dsn = "host=127.0.0.1 user=app password=apppass dbname=canvas port=5432 sslmode=disable"
		case "sqlite":
			dsn = "file:canvas.db?_pragma=busy_timeout(5000)"
		default:
			dsn = "app:apppass@tcp(127.0.0.1:3306)/canvas?charset=utf8mb4&parseTime=true&loc=Local"
		}
	}

	aiProvider := strings.ToLower(getenv("AI_PROVIDER", "gemini"))
	aiModel := os.Getenv("AI_MODEL")
	if aiModel == "" {
		switch aiProvider {
		case "ollama":
			aiModel = "llama3:latest"
		case "openrouter":
			aiModel = "openrouter/auto"
		default:
			aiModel = "gemini-flash-latest"
		}
	}

	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		AppEnv:   getenv("APP_ENV", "dev"),

		CORSAllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS", defaultOrigins),

		AuthRateRPS:   getenvFloat("AUTH_RATE_RPS", 5),
		AuthRateBurst: getenvInt("AUTH_RATE_BURST", 10),

		DBDriver: driver,
		DBDSN:    dsn,

		JWTSecret:  getenv("JWT_SECRET", "dev-secret-change-me"),
		AccessTTL:  getenvDuration("JWT_ACCESS_TTL", 5*time.Minute),
		RefreshTTL: getenvDuration("JWT_REFRESH_TTL", 24*time.Hour),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),

		ChatContextWindowSize: getenvInt("CHAT_CONTEXT_WINDOW_SIZE", 10),

		AIProvider:        aiProvider,
		AIModel:           aiModel,
		AITimeout:         getenvDuration("AI_TIMEOUT", 60*time.Second),
		AIPromptPrefix:    getenv("AI_PROMPT_PREFIX", "Answer in plain text (paragraphs): "),
		GeminiBaseURL:     getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		OllamaBaseURL:     getenv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OpenRouterBaseURL: getenv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       getenv("RABBIT_QUEUE", "canvas_turns"),
		WorkerConcurrency: clamp(getenvInt("WORKER_CONCURRENCY", 2), 1, 50),
	}
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// getenvList splits a comma separated value, dropping blanks.
func getenvList(key string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getenvDuration accepts Go durations ("90s") or plain seconds ("90").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
