package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Recurrence RecurrenceConfig
	Feed       FeedConfig
	Reminders  RemindersConfig
	Notify     NotifyConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RecurrenceConfig tunes occurrence expansion caching.
type RecurrenceConfig struct {
	CacheTTL time.Duration
}

// FeedConfig governs the iCalendar feed endpoint.
type FeedConfig struct {
	Enabled      bool
	TokenSecret  string
	TokenTTL     time.Duration
	WindowPast   time.Duration
	WindowFuture time.Duration
}

// RemindersConfig controls the upcoming-event reminder scanner.
type RemindersConfig struct {
	Enabled      bool
	ScanInterval time.Duration
	LeadTime     time.Duration
	Workers      int
	QueueSize    int
}

// NotifyConfig shapes outbound delivery retries.
type NotifyConfig struct {
	Provider    string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Recurrence = RecurrenceConfig{
		CacheTTL: parseDuration(v.GetString("RECURRENCE_CACHE_TTL"), 6*time.Hour),
	}

	cfg.Feed = FeedConfig{
		Enabled:      v.GetBool("ENABLE_CALENDAR_FEED"),
		TokenSecret:  v.GetString("FEED_TOKEN_SECRET"),
		TokenTTL:     parseDuration(v.GetString("FEED_TOKEN_TTL"), 30*24*time.Hour),
		WindowPast:   parseDuration(v.GetString("FEED_WINDOW_PAST"), 30*24*time.Hour),
		WindowFuture: parseDuration(v.GetString("FEED_WINDOW_FUTURE"), 180*24*time.Hour),
	}

	cfg.Reminders = RemindersConfig{
		Enabled:      v.GetBool("ENABLE_REMINDERS"),
		ScanInterval: parseDuration(v.GetString("REMINDER_SCAN_INTERVAL"), 15*time.Minute),
		LeadTime:     parseDuration(v.GetString("REMINDER_LEAD_TIME"), 24*time.Hour),
		Workers:      v.GetInt("REMINDER_WORKERS"),
		QueueSize:    v.GetInt("REMINDER_QUEUE_SIZE"),
	}

	cfg.Notify = NotifyConfig{
		Provider:    v.GetString("NOTIFY_PROVIDER"),
		MaxAttempts: v.GetInt("NOTIFY_MAX_ATTEMPTS"),
		BaseDelay:   parseDuration(v.GetString("NOTIFY_BASE_DELAY"), 500*time.Millisecond),
		MaxDelay:    parseDuration(v.GetString("NOTIFY_MAX_DELAY"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RECURRENCE_CACHE_TTL", "6h")

	v.SetDefault("ENABLE_CALENDAR_FEED", true)
	v.SetDefault("FEED_TOKEN_SECRET", "dev_feed_secret")
	v.SetDefault("FEED_TOKEN_TTL", "720h")
	v.SetDefault("FEED_WINDOW_PAST", "720h")
	v.SetDefault("FEED_WINDOW_FUTURE", "4320h")

	v.SetDefault("ENABLE_REMINDERS", false)
	v.SetDefault("REMINDER_SCAN_INTERVAL", "15m")
	v.SetDefault("REMINDER_LEAD_TIME", "24h")
	v.SetDefault("REMINDER_WORKERS", 2)
	v.SetDefault("REMINDER_QUEUE_SIZE", 64)

	v.SetDefault("NOTIFY_PROVIDER", "console")
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 4)
	v.SetDefault("NOTIFY_BASE_DELAY", "500ms")
	v.SetDefault("NOTIFY_MAX_DELAY", "30s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
