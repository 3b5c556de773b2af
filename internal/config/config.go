package config

import (
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Config is loaded once at process start and passed into constructors; flow
// logic never reads the environment directly.
type Config struct {
	Port     int
	LogLevel string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	ClientURL string

	EmailHost string
	EmailPort int
	EmailUser string
	EmailPass string

	KafkaBrokers []string
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		Port:     EnvIntDefault("PORT", 8080),
		LogLevel: EnvDefault("LOG_LEVEL", "info"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     EnvDefault("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		JWTSecret:     []byte(os.Getenv("JWT_SECRET")),
		RefreshSecret: []byte(os.Getenv("REFRESH_TOKEN_SECRET")),
		AccessTTL:     ParseExpiry(os.Getenv("JWT_EXPIRES_IN"), DefaultAccessTTL),
		RefreshTTL:    ParseExpiry(os.Getenv("REFRESH_TOKEN_EXPIRES_IN"), DefaultRefreshTTL),

		ClientURL: EnvDefault("CLIENT_URL", "http://localhost:5173"),

		EmailHost: os.Getenv("EMAIL_HOST"),
		EmailPort: EnvIntDefault("EMAIL_PORT", 587),
		EmailUser: os.Getenv("EMAIL_USER"),
		EmailPass: os.Getenv("EMAIL_PASS"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
	}

	return cfg, nil
}

var expiryRe = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseExpiry parses durations of the form <integer><unit>, unit one of
// s, m, h, d. Anything unparseable falls back to def.
func ParseExpiry(s string, def time.Duration) time.Duration {
	m := expiryRe.FindStringSubmatch(s)
	if m == nil {
		return def
	}
	val, err := strconv.Atoi(m[1])
	if err != nil {
		return def
	}
	switch m[2] {
	case "s":
		return time.Duration(val) * time.Second
	case "m":
		return time.Duration(val) * time.Minute
	case "h":
		return time.Duration(val) * time.Hour
	case "d":
		return time.Duration(val) * 24 * time.Hour
	}
	return def
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}
