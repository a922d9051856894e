// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"os"
	"strings"

	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Journal struct {
		Input          string `mapstructure:"input" yaml:"input"`
		Output         string `mapstructure:"output" yaml:"output"`
		Currency       string `mapstructure:"currency" yaml:"currency"`
		AccountOutputs string `mapstructure:"account_outputs" yaml:"account_outputs"`
	} `mapstructure:"journal" yaml:"journal"`

	Match struct {
		FuzzyDays    int    `mapstructure:"fuzzy_days" yaml:"fuzzy_days"`
		AccountLimit string `mapstructure:"account_limit" yaml:"account_limit"`
	} `mapstructure:"match" yaml:"match"`

	Classifier struct {
		DefaultAccount string `mapstructure:"default_account" yaml:"default_account"`
	} `mapstructure:"classifier" yaml:"classifier"`
}

// OutputRule routes new account-open directives whose account matches
// Pattern (anchored at the start) to Filename.
type OutputRule struct {
	Pattern  string `yaml:"pattern"`
	Filename string `yaml:"filename"`
}

// routingFile is the on-disk shape of an account routing file.
type routingFile struct {
	AccountOutputs []OutputRule `yaml:"account_outputs"`
}

// InitializeConfig initializes Viper configuration with hierarchical loading
func InitializeConfig() (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.ledger-reconcile")
	v.AddConfigPath(".ledger-reconcile")
	v.AddConfigPath(".")

	// 3. Environment variables
	v.SetEnvPrefix("RECONCILE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Log the error but don't fail - continue with defaults and env vars
			fmt.Printf("Warning: error reading config file %s: %v\n", v.ConfigFileUsed(), err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("journal.input", "")
	v.SetDefault("journal.output", "")
	v.SetDefault("journal.currency", "USD")
	v.SetDefault("journal.account_outputs", "")

	v.SetDefault("match.fuzzy_days", 3)
	v.SetDefault("match.account_limit", "")

	v.SetDefault("classifier.default_account", "Expenses:Unknown")
}

// validateConfig checks the loaded configuration for obvious mistakes.
func validateConfig(config *Config) error {
	if config.Match.FuzzyDays < 0 {
		return &recerror.ConfigurationError{
			Reason: fmt.Sprintf("match.fuzzy_days must not be negative, got %d", config.Match.FuzzyDays),
		}
	}
	if _, err := logrus.ParseLevel(strings.ToLower(config.Log.Level)); err != nil {
		return &recerror.ConfigurationError{
			Reason: fmt.Sprintf("invalid log.level %q", config.Log.Level),
			Err:    err,
		}
	}
	return nil
}

// LoadAccountRouting reads an account routing file. Both the documented
// shape (an account_outputs list) and a bare list of rules are accepted.
func LoadAccountRouting(path string) ([]OutputRule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &recerror.ConfigurationError{Reason: "cannot read account routing file", Err: err}
	}

	var file routingFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.AccountOutputs) > 0 {
		return file.AccountOutputs, nil
	}

	var rules []OutputRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, &recerror.ConfigurationError{
			Reason: fmt.Sprintf("malformed account routing file %s", path),
			Err:    err,
		}
	}
	return rules, nil
}
