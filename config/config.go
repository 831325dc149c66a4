// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	LockMemory = "memory"
	LockRedis  = "redis"
)

type Config struct {
	Env  string
	Port int

	Database DatabaseConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Leave    LeaveConfig
	Lock     LockConfig
	Redis    RedisConfig
	Metrics  MetricsConfig
}

type DatabaseConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
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

// LeaveConfig holds workflow policy.
type LeaveConfig struct {
	DefaultAnnualQuota int
	AllowOverdraft     bool
}

type LockConfig struct {
	Backend string
	TTL     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MetricsConfig struct {
	Enabled bool
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Driver:      v.GetString("DB_DRIVER"),
		DSN:         v.GetString("DB_DSN"),
		AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
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

	cfg.Leave = LeaveConfig{
		DefaultAnnualQuota: v.GetInt("LEAVE_DEFAULT_ANNUAL_QUOTA"),
		AllowOverdraft:     v.GetBool("LEAVE_ALLOW_OVERDRAFT"),
	}

	cfg.Lock = LockConfig{
		Backend: strings.ToLower(v.GetString("LOCK_BACKEND")),
		TTL:     parseDuration(v.GetString("LOCK_TTL"), 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		Addr:     v.GetString("REDIS_ADDR"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("METRICS_ENABLED")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_DRIVER", "sqlite3")
	v.SetDefault("DB_DSN", "leave.db")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("JWT_SECRET", "dev_secret_change_me")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "leave-engine")

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEAVE_DEFAULT_ANNUAL_QUOTA", 20)
	v.SetDefault("LEAVE_ALLOW_OVERDRAFT", false)

	v.SetDefault("LOCK_BACKEND", LockMemory)
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("METRICS_ENABLED", true)
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return errors.New("DB_DRIVER must be sqlite3 or postgres")
	}
	switch c.Lock.Backend {
	case LockMemory, LockRedis:
	default:
		return errors.New("LOCK_BACKEND must be memory or redis")
	}
	if c.Env == EnvProduction && c.JWT.Secret == "dev_secret_change_me" {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Leave.DefaultAnnualQuota < 0 {
		return errors.New("LEAVE_DEFAULT_ANNUAL_QUOTA must not be negative")
	}
	return nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
