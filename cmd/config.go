package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "EVENTSTREAMS"
)

// config holds the settings for the eventstreams command, read from flags and EVENTSTREAMS_* environment variables.
type config struct {
	Dedup     bool   `mapstructure:"dedup"`
	LogLevel  string `mapstructure:"log-level" validate:"required,oneof=trace debug info warn error"`
	RelayURL  string `mapstructure:"relay-url" validate:"omitempty,url"`
	Since     string `mapstructure:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	URL       string `mapstructure:"url" validate:"required,url"`
	UserAgent string `mapstructure:"user-agent"`
	Wiki      string `mapstructure:"wiki" validate:"omitempty,hostname"`
}

// loadConfig resolves the config from flags, with environment variables taking precedence over flag defaults.
func loadConfig(flags *pflag.FlagSet) (*config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("cmd_config: %w", err)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cmd_config: %w", err)
	}

	cfg.Wiki = strings.TrimSpace(cfg.Wiki)
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("cmd_config: %w", err)
	}
	return &cfg, nil
}

// since returns the time historical events are requested from, or the zero time when not set.
func (c *config) since() time.Time {
	if c.Since == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, c.Since)
	if err != nil {
		return time.Time{}
	}
	return t
}
