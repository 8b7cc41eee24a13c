package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port             string
	DBURL            string
	ReadTimeoutSecs  int
	WriteTimeoutSecs int
	IdleTimeoutSecs  int
	AutoMigrate      bool

	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int

	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	RatingMaxScore          float64
	NearbyLimit             int
	NearbyMaxDistanceMeters float64
	NearbyCacheTTLSecs      int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitEnabled      bool
	RateLimitCapacity     int
	RateLimitRefillTokens int
	RateLimitInterval     time.Duration

	AMQPURL           string
	RatingEventsQueue string

	FeedURL         string
	FeedAPIKey      string
	FeedTimeoutSecs int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, applying defaults and validation.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		DBURL:            os.Getenv("DB_URL"),
		ReadTimeoutSecs:  getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		AutoMigrate:      getEnvBool("AUTO_MIGRATE", false),

		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:     getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:     getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs: getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:  getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		JWTTTL:     getEnvDuration("JWT_TTL", 24*time.Hour),
		BcryptCost: getEnvInt("BCRYPT_COST", 10),

		RatingMaxScore:          getEnvFloat("RATING_MAX_SCORE", 5),
		NearbyLimit:             getEnvInt("NEARBY_LIMIT", 10),
		NearbyMaxDistanceMeters: getEnvFloat("NEARBY_MAX_DISTANCE_METERS", 1000),
		NearbyCacheTTLSecs:      getEnvInt("NEARBY_CACHE_TTL_SECS", 30),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitEnabled:      getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitCapacity:     getEnvInt("RATE_LIMIT_CAPACITY", 20),
		RateLimitRefillTokens: getEnvInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RateLimitInterval:     getEnvDuration("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),

		AMQPURL:           os.Getenv("AMQP_URL"),
		RatingEventsQueue: getEnv("RATING_EVENTS_QUEUE", "restroom.rated"),

		FeedURL:         os.Getenv("FEED_URL"),
		FeedAPIKey:      os.Getenv("FEED_API_KEY"),
		FeedTimeoutSecs: getEnvInt("FEED_TIMEOUT_SECS", 10),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.JWTTTL <= 0 {
		return Config{}, fmt.Errorf("JWT_TTL must be positive")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if cfg.RatingMaxScore <= 0 {
		return Config{}, fmt.Errorf("RATING_MAX_SCORE must be positive")
	}
	if cfg.NearbyLimit <= 0 {
		return Config{}, fmt.Errorf("NEARBY_LIMIT must be positive")
	}
	if cfg.NearbyMaxDistanceMeters <= 0 {
		return Config{}, fmt.Errorf("NEARBY_MAX_DISTANCE_METERS must be positive")
	}
	if cfg.NearbyCacheTTLSecs < 0 {
		return Config{}, fmt.Errorf("NEARBY_CACHE_TTL_SECS must be non-negative")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.RateLimitCapacity < 1 {
		cfg.RateLimitCapacity = 1
	}
	if cfg.RateLimitRefillTokens < 1 {
		cfg.RateLimitRefillTokens = 1
	}
	if cfg.RateLimitInterval <= 0 {
		cfg.RateLimitInterval = time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
