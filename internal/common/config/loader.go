// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	// .env is optional; system environment always wins.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like QUEUE_STREAM, AI_API_KEY.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // ignore error if not found

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "apply-engine"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "localhost:6379"
	}
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 10
	}
	if cfg.Postgres.MaxIdle == 0 {
		cfg.Postgres.MaxIdle = 5
	}
	if cfg.Queue.Stream == "" {
		cfg.Queue.Stream = "applications:jobs"
	}
	if cfg.Queue.Group == "" {
		cfg.Queue.Group = "apply-workers"
	}
	if cfg.Queue.Consumer == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "worker-1"
		}
		cfg.Queue.Consumer = host
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.BlockTimeout == 0 {
		cfg.Queue.BlockTimeout = 5 * time.Second
	}
	if cfg.Queue.ClaimMinIdle == 0 {
		cfg.Queue.ClaimMinIdle = time.Minute
	}
	if cfg.Queue.EventChannel == "" {
		cfg.Queue.EventChannel = "applications:events"
	}
	if cfg.Queue.TriggerChannel == "" {
		cfg.Queue.TriggerChannel = "applications:triggers"
	}
	if cfg.Discovery.Interval == 0 {
		cfg.Discovery.Interval = 30 * time.Minute
	}
	if cfg.Discovery.AIScoreBudget == 0 {
		cfg.Discovery.AIScoreBudget = 25
	}
	if cfg.Discovery.MaxPerSource == 0 {
		cfg.Discovery.MaxPerSource = 50
	}
	if cfg.Browser.ProfilesDir == "" {
		cfg.Browser.ProfilesDir = ".browser-profiles"
	}
	if cfg.Automation.MaxSteps == 0 {
		cfg.Automation.MaxSteps = 7
	}
	if cfg.Automation.StepTimeout == 0 {
		cfg.Automation.StepTimeout = 15 * time.Second
	}
	if cfg.Automation.ManualHold == 0 {
		cfg.Automation.ManualHold = 10 * time.Minute
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-2.5-flash"
	}
	if cfg.AI.AnswerBudget == 0 {
		cfg.AI.AnswerBudget = 15
	}
	if cfg.Matcher.MatchThreshold == 0 {
		cfg.Matcher.MatchThreshold = 65
	}
	if cfg.Matcher.TitleScore == 0 {
		cfg.Matcher.TitleScore = 35
	}
	if cfg.Matcher.BucketScore == 0 {
		cfg.Matcher.BucketScore = 7.5
	}
	if cfg.Matcher.BucketScoreCap == 0 {
		cfg.Matcher.BucketScoreCap = 45
	}
	if cfg.Matcher.MinBuckets == 0 {
		cfg.Matcher.MinBuckets = 2
	}
	if cfg.Matcher.PreferenceScore == 0 {
		cfg.Matcher.PreferenceScore = 5
	}
	if cfg.Matcher.PreferenceCap == 0 {
		cfg.Matcher.PreferenceCap = 20
	}
	if cfg.Notifications.Email.AWSRegion == "" {
		cfg.Notifications.Email.AWSRegion = "us-east-1"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1")
	}
	if cfg.Automation.MaxSteps < 1 {
		return fmt.Errorf("automation.max_steps must be at least 1")
	}
	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.From == "" {
		return fmt.Errorf("notifications.email.from is required when email is enabled")
	}
	if cfg.Notifications.Telegram.Enabled && cfg.Notifications.Telegram.Token == "" {
		return fmt.Errorf("notifications.telegram.token is required when telegram is enabled")
	}
	return nil
}
