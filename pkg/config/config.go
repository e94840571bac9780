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

	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
	Telegram TelegramConfig
	Sweep    SweepConfig
	Files    FilesConfig
	CORS     CORSConfig
	Log      LogConfig
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

// AuthConfig governs the OTP activation and session flows.
type AuthConfig struct {
	OTPTTL            time.Duration
	SessionTTL        time.Duration
	BcryptCost        int
	OTPInlineFallback bool
	DownloadSecret    string
	DownloadTokenTTL  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Email    string
	Password string
	From     string
}

// TelegramConfig identifies the bot and the archive group files are relayed to.
type TelegramConfig struct {
	BotToken      string
	TargetChatID  string
	APIBaseURL    string
	ClientTimeout time.Duration
}

// SweepConfig controls the periodic file-link validity sweep.
type SweepConfig struct {
	Enabled     bool
	Interval    time.Duration
	Concurrency int
}

// FilesConfig tunes the archive listing endpoints.
type FilesConfig struct {
	StatsCacheTTL  time.Duration
	MaxUploadBytes int64
	CacheEnabled   bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
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

	cfg.Auth = AuthConfig{
		OTPTTL:            parseDuration(v.GetString("OTP_TTL"), 10*time.Minute),
		SessionTTL:        parseDuration(v.GetString("SESSION_TTL"), 7*24*time.Hour),
		BcryptCost:        v.GetInt("BCRYPT_COST"),
		OTPInlineFallback: v.GetBool("OTP_INLINE_FALLBACK"),
		DownloadSecret:    v.GetString("DOWNLOAD_TOKEN_SECRET"),
		DownloadTokenTTL:  parseDuration(v.GetString("DOWNLOAD_TOKEN_TTL"), 15*time.Minute),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_SERVER"),
		Port:     v.GetInt("SMTP_PORT"),
		Email:    v.GetString("SMTP_EMAIL"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("SMTP_FROM"),
	}

	cfg.Telegram = TelegramConfig{
		BotToken:      v.GetString("BOT_TOKEN"),
		TargetChatID:  v.GetString("TARGET_GROUP_ID"),
		APIBaseURL:    v.GetString("TELEGRAM_API_BASE"),
		ClientTimeout: parseDuration(v.GetString("TELEGRAM_TIMEOUT"), 60*time.Second),
	}

	cfg.Sweep = SweepConfig{
		Enabled:     v.GetBool("ENABLE_LINK_SWEEP"),
		Interval:    parseDuration(v.GetString("LINK_SWEEP_INTERVAL"), 6*time.Hour),
		Concurrency: v.GetInt("LINK_SWEEP_CONCURRENCY"),
	}

	maxUpload := v.GetInt64("FILES_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	cfg.Files = FilesConfig{
		StatsCacheTTL:  parseDuration(v.GetString("FILES_STATS_CACHE_TTL"), 5*time.Minute),
		MaxUploadBytes: maxUpload,
		CacheEnabled:   v.GetBool("ENABLE_FILES_CACHE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
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
	v.SetDefault("DB_NAME", "telegram_archive")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("BCRYPT_COST", 10)
	// Returning the OTP in the API response is for environments without a
	// working mail transport. Keep it off in production.
	v.SetDefault("OTP_INLINE_FALLBACK", false)
	v.SetDefault("DOWNLOAD_TOKEN_SECRET", "dev_download_secret")
	v.SetDefault("DOWNLOAD_TOKEN_TTL", "15m")

	v.SetDefault("SMTP_SERVER", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_EMAIL", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")

	v.SetDefault("BOT_TOKEN", "")
	v.SetDefault("TARGET_GROUP_ID", "")
	v.SetDefault("TELEGRAM_API_BASE", "https://api.telegram.org")
	v.SetDefault("TELEGRAM_TIMEOUT", "60s")

	v.SetDefault("ENABLE_LINK_SWEEP", false)
	v.SetDefault("LINK_SWEEP_INTERVAL", "6h")
	v.SetDefault("LINK_SWEEP_CONCURRENCY", 2)

	v.SetDefault("FILES_STATS_CACHE_TTL", "5m")
	v.SetDefault("FILES_MAX_UPLOAD_BYTES", 50*1024*1024)
	v.SetDefault("ENABLE_FILES_CACHE", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
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
