package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Security  SecurityConfig
	TwoFactor TwoFactorConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	// URL is optional. When empty the service runs on the in-process store,
	// which is fine for a single instance but not for a fleet.
	URL string
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type SecurityConfig struct {
	MaxLoginAttempts     int
	LockoutDuration      time.Duration
	AttemptTTL           time.Duration
	LoginRateCeiling     int
	LoginRateWindow      time.Duration
	RegisterRateCeiling  int
	RegisterRateWindow   time.Duration
	ResetRateCeiling     int
	ResetRateWindow      time.Duration
	BaseDelayMs          int
	RandomDelayMs        int
	StoreCleanupInterval time.Duration
}

type TwoFactorConfig struct {
	EncryptionKey   []byte
	Issuer          string
	SetupTTL        time.Duration
	ChallengeSecret string
	ChallengeExpiry time.Duration
	BackupCodeCount int
}

type EmailConfig struct {
	Enabled   bool
	AWSRegion string
	FromEmail string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	encryptionKey, err := loadEncryptionKey(env)
	if err != nil {
		return nil, err
	}

	challengeSecret := getEnv("CHALLENGE_TOKEN_SECRET", "")
	if challengeSecret == "" {
		return nil, fmt.Errorf("CHALLENGE_TOKEN_SECRET is required")
	}
	if err := validateSecret("CHALLENGE_TOKEN_SECRET", challengeSecret, env); err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Security: SecurityConfig{
			MaxLoginAttempts:     getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockoutDuration:      getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			AttemptTTL:           getEnvAsDuration("ATTEMPT_TTL", 1*time.Hour),
			LoginRateCeiling:     getEnvAsInt("LOGIN_RATE_CEILING", 10),
			LoginRateWindow:      getEnvAsDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
			RegisterRateCeiling:  getEnvAsInt("REGISTER_RATE_CEILING", 5),
			RegisterRateWindow:   getEnvAsDuration("REGISTER_RATE_WINDOW", 1*time.Hour),
			ResetRateCeiling:     getEnvAsInt("RESET_RATE_CEILING", 3),
			ResetRateWindow:      getEnvAsDuration("RESET_RATE_WINDOW", 1*time.Hour),
			BaseDelayMs:          getEnvAsInt("AUTH_BASE_DELAY_MS", 100),
			RandomDelayMs:        getEnvAsInt("AUTH_RANDOM_DELAY_MS", 50),
			StoreCleanupInterval: getEnvAsDuration("STORE_CLEANUP_INTERVAL", 5*time.Minute),
		},
		TwoFactor: TwoFactorConfig{
			EncryptionKey:   encryptionKey,
			Issuer:          getEnv("TOTP_ISSUER", "Mercato"),
			SetupTTL:        getEnvAsDuration("TOTP_SETUP_TTL", 10*time.Minute),
			ChallengeSecret: challengeSecret,
			ChallengeExpiry: getEnvAsDuration("CHALLENGE_TOKEN_EXPIRY", 5*time.Minute),
			BackupCodeCount: getEnvAsInt("BACKUP_CODE_COUNT", 10),
		},
		Email: EmailConfig{
			Enabled:   getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
			FromEmail: getEnv("FROM_EMAIL", "security@mercato.example"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	return cfg, nil
}

// loadEncryptionKey reads the AES-256 key for TOTP secrets. The variable holds
// the raw 32 bytes, so multi-byte characters are rejected up front.
func loadEncryptionKey(env string) ([]byte, error) {
	raw := getEnv("TOTP_ENCRYPTION_KEY", "")
	if raw == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}
	key := []byte(raw)
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be exactly 32 bytes (got %d)", len(key))
	}
	_ = env
	return key, nil
}

// validateSecret enforces minimum strength for signing secrets
func validateSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
