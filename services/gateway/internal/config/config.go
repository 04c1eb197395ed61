package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var defaultPublicPaths = []string{
	"/api/users/login",
	"/api/users/register",
	"/api/users/refresh",
	"/api/users/logout",
	"/api/users/verify-email/*",
	"/api/mail/*",
	"/health",
	"/ready",
	"/metrics",
}

type Config struct {
	HTTPAddr           string
	JWTSecret          string
	IdentityHTTPURL    string
	BoardHTTPURL       string
	IdentityGRPCAddr   string
	GRPCDialTimeout    time.Duration
	ServiceAuthToken   string
	PublicPaths        []string
	CORSAllowedOrigins []string
	UpstreamTimeout    time.Duration
	LogLevel           string
	LogFormat          string
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		JWTSecret:          getenvKey("JWT_SECRET", ""),
		IdentityHTTPURL:    getenv("IDENTITY_HTTP_URL", "http://127.0.0.1:8081"),
		BoardHTTPURL:       getenv("BOARD_HTTP_URL", "http://127.0.0.1:8083"),
		IdentityGRPCAddr:   getenv("IDENTITY_GRPC_ADDR", "127.0.0.1:9091"),
		GRPCDialTimeout:    getenvDuration("GRPC_DIAL_TIMEOUT", 5*time.Second),
		ServiceAuthToken:   getenvKey("SERVICE_AUTH_TOKEN", ""),
		PublicPaths:        getenvList("PUBLIC_PATHS", defaultPublicPaths),
		CORSAllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		UpstreamTimeout:    getenvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "json"),
	}
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IdentityHTTPURL == "" {
		return errors.New("IDENTITY_HTTP_URL is required")
	}
	return nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvKey(key, fallback string) string {
	if file := os.Getenv(key + "_FILE"); file != "" {
		if data, err := os.ReadFile(file); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	if val := os.Getenv(key); val != "" {
		return strings.TrimSpace(val)
	}
	return fallback
}
