package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const minJWTSecretLen = 16

type Config struct {
	AppName      string   `env:"AUTH_APP_NAME" envDefault:"identity-service"`
	AppEnv       string   `env:"AUTH_APP_ENV" envDefault:"local"`
	LogLevel     string   `env:"AUTH_LOG_LEVEL" envDefault:"info"`
	HTTPHost     string   `env:"AUTH_HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort     string   `env:"AUTH_HTTP_PORT" envDefault:"3000"`
	HTTPBasePath string   `env:"AUTH_HTTP_BASE_PATH" envDefault:"/api"`
	CORSOrigins  []string `env:"AUTH_CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	DBHost     string `env:"AUTH_DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"AUTH_DB_PORT" envDefault:"5432"`
	DBUser     string `env:"AUTH_DB_USER" envDefault:"app"`
	DBPassword string `env:"AUTH_DB_PASSWORD" envDefault:"app_password"`
	DBName     string `env:"AUTH_DB_NAME" envDefault:"identitydb"`
	DBSSLMode  string `env:"AUTH_DB_SSLMODE" envDefault:"disable"`

	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramMaxAge   time.Duration `env:"TELEGRAM_AUTH_MAX_AGE" envDefault:"24h"`

	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleTokenInfoURL string        `env:"GOOGLE_TOKENINFO_URL" envDefault:"https://oauth2.googleapis.com/tokeninfo"`
	GoogleTimeout      time.Duration `env:"GOOGLE_TIMEOUT" envDefault:"5s"`

	JWTSecret     string        `env:"AUTH_JWT_SECRET"`
	JWTPrivateKey string        `env:"AUTH_JWT_PRIVATE_KEY"`
	JWTPublicKey  string        `env:"AUTH_JWT_PUBLIC_KEY"`
	JWTAudience   string        `env:"AUTH_JWT_AUDIENCE" envDefault:"frontend"`
	JWTIssuer     string        `env:"AUTH_JWT_ISSUER" envDefault:"identity-service"`
	AccessTTL     time.Duration `env:"AUTH_JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"AUTH_JWT_REFRESH_TTL" envDefault:"720h"`

	RequestTimeout       time.Duration `env:"AUTH_REQUEST_TIMEOUT" envDefault:"10s"`
	RefreshSweepInterval time.Duration `env:"AUTH_REFRESH_SWEEP_INTERVAL" envDefault:"1h"`

	NATSURL               string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSVerifySubject     string `env:"NATS_SUBJECT_VERIFY_JWT" envDefault:"auth.verifyJWT"`
	NATSUserCreateSubject string `env:"NATS_SUBJECT_USER_CREATE" envDefault:"user.create-user"`
	NATSAssignRoleSubject string `env:"NATS_SUBJECT_ASSIGN_ROLE" envDefault:"rbac.assign-role"`

	DefaultRole string `env:"AUTH_DEFAULT_ROLE" envDefault:"user"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret != "" && len(c.JWTSecret) < minJWTSecretLen {
		return errors.New("AUTH_JWT_SECRET must be at least 16 characters")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	return nil
}
