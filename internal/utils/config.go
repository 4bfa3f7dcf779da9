package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment discriminates deployment modes. Only EnvTest enables test-only behaviour.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
)

// RefreshStoreKind selects the backing store for refresh token records.
type RefreshStoreKind string

const (
	RefreshStoreDatabase RefreshStoreKind = "database"
	RefreshStoreRedis    RefreshStoreKind = "redis"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultBcryptCost      = 12
)

var (
	ErrMissingTokenSecret = errors.New("access and refresh token secrets are required")
	ErrSharedTokenSecret  = errors.New("access and refresh token secrets must differ")
	ErrUnknownEnvironment = errors.New("unknown APP_ENV")
	ErrUnknownStore       = errors.New("unknown REFRESH_STORE")
	ErrInvalidTokenTTL    = errors.New("token ttl must be positive")
)

type DatabaseConfig struct {
	URL              string
	PostgresHost     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresPort     string
}

// DSN returns DATABASE_URL when set, otherwise a postgres keyword/value DSN.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return "host=" + c.PostgresHost +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" port=" + c.PostgresPort + " sslmode=disable TimeZone=UTC"
}

type ServerConfig struct {
	Port string
}

type AdminConfig struct {
	Username string
	Password string
}

type TokenConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}

type SecurityConfig struct {
	BcryptCost int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type Config struct {
	Environment  Environment
	RefreshStore RefreshStoreKind
	Database     *DatabaseConfig
	Server       *ServerConfig
	Admin        *AdminConfig
	Token        *TokenConfig
	Security     *SecurityConfig
	Redis        *RedisConfig
}

// LoadConfig reads dotenvPath (if present) into the process environment and builds a Config.
func LoadConfig(dotenvPath string) (*Config, error) {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	accessTTL, err := durationEnv("ACCESS_TOKEN_TTL", defaultAccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := durationEnv("REFRESH_TOKEN_TTL", defaultRefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	cost, err := intEnv("BCRYPT_COST", defaultBcryptCost)
	if err != nil {
		return nil, err
	}
	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:  Environment(strings.ToLower(stringEnv("APP_ENV", string(EnvProduction)))),
		RefreshStore: RefreshStoreKind(strings.ToLower(stringEnv("REFRESH_STORE", string(RefreshStoreDatabase)))),
		Database: &DatabaseConfig{
			URL:              os.Getenv("DATABASE_URL"),
			PostgresHost:     stringEnv("POSTGRES_HOST", "localhost"),
			PostgresUser:     os.Getenv("POSTGRES_USER"),
			PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
			PostgresDB:       os.Getenv("POSTGRES_DB"),
			PostgresPort:     stringEnv("POSTGRES_PORT", "5432"),
		},
		Server: &ServerConfig{
			Port: stringEnv("SERVER_PORT", "8080"),
		},
		Admin: &AdminConfig{
			Username: os.Getenv("ADMIN_USERNAME"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
		Token: &TokenConfig{
			AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
			RefreshTokenSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
			AccessTokenTTL:     accessTTL,
			RefreshTokenTTL:    refreshTTL,
		},
		Security: &SecurityConfig{
			BcryptCost: cost,
		},
		Redis: &RedisConfig{
			Addr:     stringEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Environment {
	case EnvProduction, EnvDevelopment, EnvTest:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEnvironment, c.Environment)
	}
	switch c.RefreshStore {
	case RefreshStoreDatabase, RefreshStoreRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.RefreshStore)
	}
	if c.Token.AccessTokenSecret == "" || c.Token.RefreshTokenSecret == "" {
		return ErrMissingTokenSecret
	}
	if c.Token.AccessTokenSecret == c.Token.RefreshTokenSecret {
		return ErrSharedTokenSecret
	}
	if c.Token.AccessTokenTTL <= 0 || c.Token.RefreshTokenTTL <= 0 {
		return ErrInvalidTokenTTL
	}
	return nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
