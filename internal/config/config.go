package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when a token lifetime string cannot be parsed.
const (
	defaultAccessSeconds  = 900       // 15m
	defaultRefreshSeconds = 7 * 86400 // 7d
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Signing key material: literal PEM wins over path.
	JWTPrivateKey     string
	JWTPrivateKeyPath string
	JWTPublicKey      string
	JWTPublicKeyPath  string

	AccessTokenSeconds  int
	RefreshTokenSeconds int

	// AuthServerURL is this server's external base URL (social redirect
	// URIs are built from it); AuthClientURL is the front-end that
	// receives tokens after a social callback.
	AuthServerURL string
	AuthClientURL string

	GoogleClientID     string
	GoogleClientSecret string
	KakaoClientID      string
	KakaoClientSecret  string
	NaverClientID      string
	NaverClientSecret  string

	ProviderTimeout time.Duration

	AdminAPIKey string

	SeedClientID     string
	SeedClientSecret string
	SeedClientName   string
	SeedRedirectURIs []string

	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool

	// Warnings collects non-fatal configuration concerns (e.g. an
	// unparseable lifetime string replaced by its default); main logs
	// them once the logger exists.
	Warnings []string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		ServiceName:          getEnv("SERVICE_NAME", "ppop-auth"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		JWTPrivateKey:        os.Getenv("JWT_PRIVATE_KEY"),
		JWTPrivateKeyPath:    getEnv("JWT_PRIVATE_KEY_PATH", "./keys/private.pem"),
		JWTPublicKey:         os.Getenv("JWT_PUBLIC_KEY"),
		JWTPublicKeyPath:     getEnv("JWT_PUBLIC_KEY_PATH", "./keys/public.pem"),
		AuthServerURL:        getEnv("AUTH_SERVER_URL", "http://localhost:8080"),
		AuthClientURL:        getEnv("AUTH_CLIENT_URL", "http://localhost:3000"),
		GoogleClientID:       os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   os.Getenv("GOOGLE_CLIENT_SECRET"),
		KakaoClientID:        os.Getenv("KAKAO_CLIENT_ID"),
		KakaoClientSecret:    os.Getenv("KAKAO_CLIENT_SECRET"),
		NaverClientID:        os.Getenv("NAVER_CLIENT_ID"),
		NaverClientSecret:    os.Getenv("NAVER_CLIENT_SECRET"),
		ProviderTimeout:      getDuration("PROVIDER_HTTP_TIMEOUT", 10*time.Second),
		AdminAPIKey:          os.Getenv("ADMIN_API_KEY"),
		SeedClientID:         os.Getenv("SEED_CLIENT_ID"),
		SeedClientSecret:     os.Getenv("SEED_CLIENT_SECRET"),
		SeedClientName:       getEnv("SEED_CLIENT_NAME", "PPOP Auth Client"),
		SeedRedirectURIs:     getList("SEED_CLIENT_REDIRECT_URIS", nil),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-API-Key"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.AccessTokenSeconds = cfg.parseExpiry("JWT_ACCESS_EXPIRES_IN", getEnv("JWT_ACCESS_EXPIRES_IN", "15m"), defaultAccessSeconds)
	cfg.RefreshTokenSeconds = cfg.parseExpiry("JWT_REFRESH_EXPIRES_IN", getEnv("JWT_REFRESH_EXPIRES_IN", "7d"), defaultRefreshSeconds)

	return cfg, nil
}

var expiryPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

var expiryUnits = map[string]int{"s": 1, "m": 60, "h": 3600, "d": 86400}

// parseExpiry converts a lifetime string like "15m" or "7d" to whole
// seconds. Unparseable input falls back to def and is recorded as a
// warning rather than failing startup.
func (c *Config) parseExpiry(key, value string, def int) int {
	match := expiryPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a valid lifetime, using %ds", key, value, def))
		return def
	}
	n, err := strconv.Atoi(match[1])
	if err != nil || n <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a valid lifetime, using %ds", key, value, def))
		return def
	}
	return n * expiryUnits[match[2]]
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
