// Package config loads runtime configuration: compiled defaults, an optional
// YAML file, then CADENCE_* environment overrides, in that order.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"cadence/internal/faults"
)

// Config is the typed runtime configuration.
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Log       LogConfig       `mapstructure:"log"`
	Model     ModelConfig     `mapstructure:"model"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Budget    BudgetConfig    `mapstructure:"budget"`
}

type WorkspaceConfig struct {
	Root      string `mapstructure:"root"`
	SkillsDir string `mapstructure:"skills_dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ModelConfig struct {
	APIKey      string            `mapstructure:"api_key"`
	BaseURL     string            `mapstructure:"base_url"`
	DefaultTier string            `mapstructure:"default_tier"`
	TierMap     map[string]string `mapstructure:"tier_map"`
}

type ExecutorConfig struct {
	MaxTokens      int           `mapstructure:"max_tokens"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type PipelineConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

type SchedulerConfig struct {
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	CatchUpEnabled      bool          `mapstructure:"catch_up_enabled"`
	CatchUpLookbackDays int           `mapstructure:"catch_up_lookback_days"`
}

type WebhookConfig struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"`
}

type BudgetConfig struct {
	TotalUSD          float64 `mapstructure:"total_usd"`
	ThrottleModelTier string  `mapstructure:"throttle_model_tier"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace.root", "./workspace")
	v.SetDefault("workspace.skills_dir", "./skills")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("model.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("model.default_tier", "standard")
	v.SetDefault("model.tier_map", map[string]string{
		"small":    "claude-haiku-4-5",
		"standard": "claude-sonnet-4-5",
		"large":    "claude-opus-4-1",
	})
	v.SetDefault("executor.max_tokens", 8192)
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.retry_delay", time.Second)
	v.SetDefault("executor.request_timeout", 2*time.Minute)
	v.SetDefault("pipeline.max_concurrency", 3)
	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.catch_up_enabled", true)
	v.SetDefault("scheduler.catch_up_lookback_days", 31)
	v.SetDefault("webhook.addr", ":8787")
	v.SetDefault("webhook.token", "")
	v.SetDefault("budget.total_usd", 0)
	v.SetDefault("budget.throttle_model_tier", "small")
}

// Load reads configuration. path names an explicit YAML file; when empty,
// cadence.yaml in the working directory is used if present. Environment
// variables override both, e.g. CADENCE_WEBHOOK_TOKEN for webhook.token.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("model.api_key", "CADENCE_MODEL_API_KEY", "ANTHROPIC_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, faults.Wrap(faults.CodeReadFailed, "could not read config file", err)
		}
	} else {
		v.SetConfigName("cadence")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, faults.Wrap(faults.CodeParseError, "could not parse cadence.yaml", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "invalid configuration", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Workspace.Root == "" {
		return faults.Newf(faults.CodeValidationError, "workspace.root must not be empty")
	}
	if _, ok := c.Model.TierMap[c.Model.DefaultTier]; !ok {
		return faults.Newf(faults.CodeValidationError, "model.default_tier %q is not in model.tier_map", c.Model.DefaultTier)
	}
	if c.Executor.MaxRetries < 0 {
		return faults.Newf(faults.CodeValidationError, "executor.max_retries must be non-negative")
	}
	if c.Scheduler.TickInterval <= 0 {
		return faults.Newf(faults.CodeValidationError, "scheduler.tick_interval must be positive")
	}
	return nil
}
