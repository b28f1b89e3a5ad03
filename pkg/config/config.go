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

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Crypto       CryptoConfig
	Slots        SlotsConfig
	Activity     ActivityConfig
	Organization OrganizationConfig
	SMTP         SMTPConfig
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
	Migrate      bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CryptoConfig carries the key protecting student personal data at rest.
type CryptoConfig struct {
	StudentFieldKey string
}

// SlotsConfig tunes slot lifecycle behaviour.
type SlotsConfig struct {
	LockLeadTime    time.Duration
	HiddenAfter     time.Duration
	OptionsCacheTTL time.Duration
}

// ActivityConfig tunes the enrollment summary debouncer.
type ActivityConfig struct {
	DebounceWindow time.Duration
	SweepInterval  time.Duration
}

// OrganizationConfig holds the contact details shown in letters and emails.
type OrganizationConfig struct {
	ContactFirstName string
	ContactLastName  string
	Telephone        string
	Email            string
}

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Enabled  bool
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
		Migrate:      v.GetBool("DB_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Crypto = CryptoConfig{
		StudentFieldKey: v.GetString("STUDENT_FIELD_KEY"),
	}

	cfg.Slots = SlotsConfig{
		LockLeadTime:    parseDuration(v.GetString("SLOT_LOCK_LEAD_TIME"), 14*24*time.Hour),
		HiddenAfter:     parseDuration(v.GetString("SLOT_HIDDEN_AFTER"), 24*time.Hour),
		OptionsCacheTTL: parseDuration(v.GetString("SLOT_OPTIONS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Activity = ActivityConfig{
		DebounceWindow: parseDuration(v.GetString("ACTIVITY_DEBOUNCE_WINDOW"), 30*time.Minute),
		SweepInterval:  parseDuration(v.GetString("ACTIVITY_SWEEP_INTERVAL"), time.Minute),
	}

	cfg.Organization = OrganizationConfig{
		ContactFirstName: v.GetString("ORG_CONTACT_FIRST_NAME"),
		ContactLastName:  v.GetString("ORG_CONTACT_LAST_NAME"),
		Telephone:        v.GetString("ORG_TELEPHONE"),
		Email:            v.GetString("ORG_EMAIL"),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		Username: v.GetString("SMTP_USERNAME"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("SMTP_FROM"),
		Enabled:  v.GetBool("SMTP_ENABLED"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "orientation")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "orientation-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STUDENT_FIELD_KEY", "0123456789abcdef0123456789abcdef")

	v.SetDefault("SLOT_LOCK_LEAD_TIME", "336h")
	v.SetDefault("SLOT_HIDDEN_AFTER", "24h")
	v.SetDefault("SLOT_OPTIONS_CACHE_TTL", "5m")

	v.SetDefault("ACTIVITY_DEBOUNCE_WINDOW", "30m")
	v.SetDefault("ACTIVITY_SWEEP_INTERVAL", "1m")

	v.SetDefault("ORG_CONTACT_FIRST_NAME", "Cesare")
	v.SetDefault("ORG_CONTACT_LAST_NAME", "Casaletel")
	v.SetDefault("ORG_TELEPHONE", "091 815 10 11")
	v.SetDefault("ORG_EMAIL", "orientation@example.edu")

	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@example.edu")
	v.SetDefault("SMTP_ENABLED", false)
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
