package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIBaseURL = "https://try-on-local.docwyn.com"
	DefaultNHBBaseURL = "https://nhb-dev-wtushxuzaa-lm.a.run.app/api/v1/"
)

type Config struct {
	APIBaseURL string
	NHBBaseURL string
	Port       string

	DBDriver    string
	DBUrl       string
	TokenSecret string

	RequestTimeout    time.Duration
	GenerationTimeout time.Duration
	ProgressDuration  time.Duration
	ResultTTL         time.Duration

	TunnelBypassHeader bool

	RateLimitRPS   float64
	RateLimitBurst int

	AllowedOrigins []string
}

func LoadConfig() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env file not found, using defaults")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" && driver == "sqlite" {
		dbURL = "tryon.db"
	}

	return Config{
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", DefaultAPIBaseURL), "/"),
		NHBBaseURL:         ensureTrailingSlash(getEnv("NHB_BASE_URL", DefaultNHBBaseURL)),
		Port:               port,
		DBDriver:           driver,
		DBUrl:              dbURL,
		TokenSecret:        os.Getenv("TOKEN_SECRET"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 10*time.Second),
		GenerationTimeout:  getDuration("GENERATION_TIMEOUT", 120*time.Second),
		ProgressDuration:   getDuration("PROGRESS_DURATION", 20*time.Second),
		ResultTTL:          getDuration("RESULT_TTL", 5*time.Minute),
		TunnelBypassHeader: getBool("TUNNEL_BYPASS_HEADER", false),
		RateLimitRPS:       getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 20),
		AllowedOrigins:     getList("CORS_ALLOWED_ORIGINS"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
