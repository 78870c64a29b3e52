package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит конфигурацию сервера, читается из окружения
type Config struct {
	Addr            string        `env:"RELAY_ADDR"             envDefault:":8080"`
	DBPath          string        `env:"RELAY_DB_PATH"          envDefault:"paper-hearts.db"`
	LogLevel        string        `env:"RELAY_LOG_LEVEL"        envDefault:"info"`
	VAPIDPublicKey  string        `env:"RELAY_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `env:"RELAY_VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string        `env:"RELAY_VAPID_SUBSCRIBER" envDefault:"mailto:relay@paper-hearts.app"`
	ReadTimeout     time.Duration `env:"RELAY_READ_TIMEOUT"     envDefault:"15s"`
	WriteTimeout    time.Duration `env:"RELAY_WRITE_TIMEOUT"    envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// PushEnabled сообщает, заданы ли VAPID ключи
// Без них push-уведомления отключены, сервер работает как обычно
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}
