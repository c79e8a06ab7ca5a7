// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct. It is read once at
// process start; nothing re-reads configuration at runtime.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Redis         RedisConfig        `mapstructure:"redis"`
	Postgres      PostgresConfig     `mapstructure:"postgres"`
	Queue         QueueConfig        `mapstructure:"queue"`
	Discovery     DiscoveryConfig    `mapstructure:"discovery"`
	Browser       BrowserConfig      `mapstructure:"browser"`
	Automation    AutomationConfig   `mapstructure:"automation"`
	AI            AIConfig           `mapstructure:"ai"`
	Matcher       MatcherConfig      `mapstructure:"matcher"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// QueueConfig describes the durable application-job stream.
type QueueConfig struct {
	Stream         string        `mapstructure:"stream"`
	Group          string        `mapstructure:"group"`
	Consumer       string        `mapstructure:"consumer"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BlockTimeout   time.Duration `mapstructure:"block_timeout"`
	ClaimMinIdle   time.Duration `mapstructure:"claim_min_idle"`
	EventChannel   string        `mapstructure:"event_channel"`
	TriggerChannel string        `mapstructure:"trigger_channel"`
}

type DiscoveryConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AIScoreBudget int           `mapstructure:"ai_score_budget"`
	MaxPerSource  int           `mapstructure:"max_per_source"`
	BoardURL      string        `mapstructure:"board_url"`
	SearchURL     string        `mapstructure:"search_url"`
	Platform      string        `mapstructure:"platform"`
	UserID        string        `mapstructure:"user_id"`
}

type BrowserConfig struct {
	Headless    bool   `mapstructure:"headless"`
	ProfilesDir string `mapstructure:"profiles_dir"`
	AutoSubmit  bool   `mapstructure:"auto_submit"`
}

type AutomationConfig struct {
	MaxSteps    int           `mapstructure:"max_steps"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`
	ManualHold  time.Duration `mapstructure:"manual_hold"`
}

type AIConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	AnswerBudget int     `mapstructure:"answer_budget"`
	MinScore     float64 `mapstructure:"min_score"`
}

// MatcherConfig keeps the classifier's tuned thresholds configurable. The
// defaults are empirical for one role profile, not structural invariants.
type MatcherConfig struct {
	MatchThreshold  int      `mapstructure:"match_threshold"`
	TitleScore      int      `mapstructure:"title_score"`
	BucketScore     float64  `mapstructure:"bucket_score"`
	BucketScoreCap  int      `mapstructure:"bucket_score_cap"`
	MinBuckets      int      `mapstructure:"min_buckets"`
	PreferenceScore int      `mapstructure:"preference_score"`
	PreferenceCap   int      `mapstructure:"preference_cap"`
	TitlePatterns   []string `mapstructure:"title_patterns"`
	ExcludedStacks  []string `mapstructure:"excluded_stacks"`
}

type NotificationConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type EmailConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AWSRegion string `mapstructure:"aws_region"`
	From      string `mapstructure:"from"`
	To        string `mapstructure:"to"`
}

type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}
