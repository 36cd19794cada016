// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the immutable configuration snapshot taken at startup.
type Config struct {
	HTTP struct {
		Addr string `env:"ADMINCORE_HTTP_ADDR" env-default:":8080"`
	}

	Postgres struct {
		DSN string `env:"ADMINCORE_PG_DSN"`
	}

	Redis struct {
		Addr     string `env:"ADMINCORE_REDIS_ADDR" env-default:"localhost:6379"`
		Password string `env:"ADMINCORE_REDIS_PASSWORD"`
		// Challenges and the session mirror live in separate logical
		// databases so either can be repointed independently.
		ChallengeDB int `env:"ADMINCORE_REDIS_CHALLENGE_DB" env-default:"0"`
		SessionDB   int `env:"ADMINCORE_REDIS_SESSION_DB" env-default:"1"`
	}

	Token struct {
		Secret        string        `env:"ADMINCORE_TOKEN_SECRET"`
		Expire        time.Duration `env:"ADMINCORE_TOKEN_EXPIRE" env-default:"2h"`
		RefreshExpire time.Duration `env:"ADMINCORE_TOKEN_REFRESH_EXPIRE" env-default:"36h"`
	}

	Captcha struct {
		TTL time.Duration `env:"ADMINCORE_CAPTCHA_TTL" env-default:"30m"`
	}

	// SuperAdminUsername names the account whose department scope covers
	// everything. Empty disables the exception.
	SuperAdminUsername string `env:"ADMINCORE_SUPER_ADMIN_USERNAME" env-default:"admin"`
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if cfg.Token.Secret == "" {
		return Config{}, fmt.Errorf("ADMINCORE_TOKEN_SECRET is required")
	}
	if cfg.Token.RefreshExpire <= cfg.Token.Expire {
		return Config{}, fmt.Errorf("refresh expiry must exceed access expiry")
	}
	return cfg, nil
}
