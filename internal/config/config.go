package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "CALORIESNAP"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "caloriesnap.db"
	defaultUploadsDir     = "uploads"
	defaultLogLevel       = "info"
	defaultOpenAIModel    = "gpt-4o"
	defaultOpenAITimeoutS = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	UploadsDir    string
	LogLevel      string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAITimeout time.Duration
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("uploads.dir", defaultUploadsDir)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("openai.model", defaultOpenAIModel)
	configViper.SetDefault("openai.timeout_seconds", defaultOpenAITimeoutS)
}

// Load parses runtime configuration from viper. The OpenAI API key is
// optional: without it the server runs on the fixed fallback
// nutrition estimate.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		UploadsDir:    configViper.GetString("uploads.dir"),
		LogLevel:      configViper.GetString("log.level"),
		OpenAIAPIKey:  configViper.GetString("openai.api_key"),
		OpenAIModel:   configViper.GetString("openai.model"),
		OpenAITimeout: time.Duration(configViper.GetInt("openai.timeout_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.UploadsDir) == "" {
		return fmt.Errorf("uploads.dir is required")
	}
	if c.OpenAITimeout <= 0 {
		return fmt.Errorf("openai.timeout_seconds must be positive")
	}
	return nil
}
