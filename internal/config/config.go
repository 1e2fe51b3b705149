// Package config loads and validates the wordbank configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Remote transport modes.
const (
	RemoteModeDirect = "direct"
	RemoteModeProxy  = "proxy"
)

type Config struct {
	DataDir string       `mapstructure:"data_dir" validate:"required,dir"`
	Server  ServerConfig `mapstructure:"server"`
	Remote  RemoteConfig `mapstructure:"remote"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" validate:"gte=1,lte=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RemoteConfig struct {
	Mode     string         `mapstructure:"mode" validate:"oneof=direct proxy"`
	ProxyURL string         `mapstructure:"proxy_url" validate:"omitempty,url"`
	Airtable AirtableConfig `mapstructure:"airtable"`
}

type AirtableConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey     string `mapstructure:"api_key"`
	BaseID     string `mapstructure:"base_id"`
	WordsTable string `mapstructure:"words_table" validate:"required"`
	UsersTable string `mapstructure:"users_table" validate:"required"`
}

func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/wordbank")
	}

	v.SetDefault("data_dir", filepath.Join("data", "wordbank"))
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("remote.mode", RemoteModeDirect)
	v.SetDefault("remote.airtable.base_url", "https://api.airtable.com/v0")
	v.SetDefault("remote.airtable.words_table", "words")
	v.SetDefault("remote.airtable.users_table", "users")

	// Credentials come from the environment only, never from the config file.
	if err := v.BindEnv("remote.airtable.api_key", "AIRTABLE_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind AIRTABLE_API_KEY environment variable: %w", err)
	}
	if err := v.BindEnv("remote.airtable.base_id", "AIRTABLE_BASE_ID"); err != nil {
		return nil, fmt.Errorf("failed to bind AIRTABLE_BASE_ID environment variable: %w", err)
	}
	if err := v.BindEnv("remote.proxy_url", "WORDBANK_PROXY_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind WORDBANK_PROXY_URL environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	validate, trans, err := newValidator()
	if err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			messages := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				messages = append(messages, fe.Translate(trans))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Mode-dependent requirements cross struct boundaries, so they are
	// checked by hand.
	switch c.Remote.Mode {
	case RemoteModeProxy:
		if c.Remote.ProxyURL == "" {
			return errors.New("invalid configuration: remote.proxy_url is required in proxy mode")
		}
	case RemoteModeDirect:
		if c.Remote.Airtable.APIKey == "" {
			return errors.New("invalid configuration: AIRTABLE_API_KEY is required in direct mode")
		}
		if c.Remote.Airtable.BaseID == "" {
			return errors.New("invalid configuration: AIRTABLE_BASE_ID is required in direct mode")
		}
	}
	return nil
}
