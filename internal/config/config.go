package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"

	PairingSimulator = "simulator"
	PairingBridge    = "bridge"
)

type Config struct {
	Port               int           `env:"PORT" envDefault:"3000"`
	MasterSecret       string        `env:"MASTER_SECRET,required,notEmpty"`
	APIKey             string        `env:"API_KEY"`
	GinMode            string        `env:"GIN_MODE" envDefault:"release"`
	TLSCertFile        string        `env:"TLS_CERT_FILE"`
	TLSKeyFile         string        `env:"TLS_KEY_FILE"`
	TokenExpirySeconds int           `env:"TOKEN_EXPIRY_SECONDS" envDefault:"604800"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment     bool          `env:"LOG_DEVELOPMENT"`
	StorageDriver      string        `env:"STORAGE_DRIVER" envDefault:"memory"`
	SessionsDB         string        `env:"SESSIONS_DB" envDefault:"data/sessions.db"`
	PromptsDB          string        `env:"PROMPTS_DB" envDefault:"data/prompts.db"`
	CustomersDB        string        `env:"CUSTOMERS_DB" envDefault:"data/customers.db"`
	CredentialsDir     string        `env:"CREDENTIALS_DIR" envDefault:"data/credentials"`
	PairingDriver      string        `env:"PAIRING_DRIVER" envDefault:"simulator"`
	PairingBridgeURL   string        `env:"PAIRING_BRIDGE_URL"`
	ReconnectDelay     time.Duration `env:"RECONNECT_DELAY" envDefault:"3s"`
	UpstreamTimeout    time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"5s"`
	SessionCreateLimit int           `env:"SESSION_CREATE_LIMIT" envDefault:"10"`
}

func (c Config) TokenExpiry() time.Duration {
	return time.Duration(c.TokenExpirySeconds) * time.Second
}

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(env.ToMap(os.Environ()))
}

func LoadConfigFromEnv(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT")
	}
	if c.TokenExpirySeconds <= 0 {
		return fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
	}
	switch c.StorageDriver {
	case StorageMemory, StorageSQLite:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.PairingDriver {
	case PairingSimulator:
	case PairingBridge:
		if c.PairingBridgeURL == "" {
			return fmt.Errorf("PAIRING_BRIDGE_URL is required for the bridge pairing driver")
		}
	default:
		return fmt.Errorf("invalid PAIRING_DRIVER %q", c.PairingDriver)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("invalid RECONNECT_DELAY")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("invalid UPSTREAM_TIMEOUT")
	}
	if c.SessionCreateLimit <= 0 {
		return fmt.Errorf("invalid SESSION_CREATE_LIMIT")
	}
	return nil
}
