package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "TASKMIND"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "taskmind.db"
	defaultModelPath    = "models/model.json"
	defaultLogLevel     = "info"
	defaultJWKSURL      = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	FirebaseProjectID string
	FirebaseJWKSURL   string
	DatabasePath      string
	ModelPath         string
	LogLevel          string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("firebase.jwks_url", defaultJWKSURL)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("model.path", defaultModelPath)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		FirebaseProjectID: configViper.GetString("firebase.project_id"),
		FirebaseJWKSURL:   configViper.GetString("firebase.jwks_url"),
		DatabasePath:      configViper.GetString("database.path"),
		ModelPath:         configViper.GetString("model.path"),
		LogLevel:          configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.FirebaseProjectID) == "" {
		return fmt.Errorf("firebase.project_id is required")
	}
	if strings.TrimSpace(c.FirebaseJWKSURL) == "" {
		return fmt.Errorf("firebase.jwks_url is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}
