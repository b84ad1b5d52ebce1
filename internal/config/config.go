package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string        `env:"ADDR,default=:8080" validate:"required"`
	DatabaseDSN      string        `env:"DB_DSN"`
	JWTSecret        string        `env:"JWT_SECRET,required=true" validate:"required,min=16"`
	JWTIssuer        string        `env:"JWT_ISSUER,default=campus-chat" validate:"required"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisChannel     string        `env:"REDIS_CHANNEL,default=chat-events" validate:"required"`
	LogLevel         string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	PreviewLength    int           `env:"PREVIEW_LENGTH,default=80" validate:"min=1,max=1000"`
	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH,default=4000" validate:"min=1,max=100000"`
	ClientBuffer     int           `env:"CLIENT_BUFFER,default=256" validate:"min=1"`
	SyncLimit        int           `env:"SYNC_LIMIT,default=200" validate:"min=1,max=200"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gt=0"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

// Load reads the environment, with a .env file in the working directory filling gaps.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) UsePostgres() bool { return c.DatabaseDSN != "" }

func (c Config) UseRedis() bool { return c.RedisAddr != "" }
