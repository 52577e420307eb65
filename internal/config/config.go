// Package config provides YAML-based configuration loading for dealwhisperer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, loaded from dealwhisperer.yaml.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Slack      SlackConfig      `yaml:"slack"`
	Salesforce SalesforceConfig `yaml:"salesforce"`
	Agent      AgentConfig      `yaml:"agent"`
	S3         S3Config         `yaml:"s3"`
	Redis      RedisConfig      `yaml:"redis"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Inbound    InboundConfig    `yaml:"inbound"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port               int `yaml:"port"`
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig selects the relational store backing the correlation tables.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // sqlite, mysql, postgres
	DSN         string `yaml:"dsn"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Name        string `yaml:"name"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// SlackConfig holds Slack credentials.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token"`      // xoxb-...
	AppToken      string `yaml:"app_token"`      // xapp-..., only for socket mode
	SigningSecret string `yaml:"signing_secret"` // Events API request signing
	SocketMode    bool   `yaml:"socket_mode"`
}

// SalesforceConfig holds CRM connection settings.
type SalesforceConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	JWTKeyPath   string `yaml:"jwt_key_path"`
	LoginURL     string `yaml:"login_url"`
	InstanceURL  string `yaml:"instance_url"`
	APIVersion   string `yaml:"api_version"`
	FlowName     string `yaml:"flow_name"`
	FlowOutput   string `yaml:"flow_output"`
	ColdDays     int    `yaml:"cold_days"`
	StalledDays  int    `yaml:"stalled_days"`
}

// Configured reports whether enough settings are present to talk to the CRM.
func (s SalesforceConfig) Configured() bool {
	return s.ClientID != "" && s.Username != "" && s.JWTKeyPath != ""
}

// AgentConfig holds conversational-agent API settings.
type AgentConfig struct {
	AgentID          string `yaml:"agent_id"`
	KeyPeopleAgentID string `yaml:"key_people_agent_id"`
	BaseURL          string `yaml:"base_url"`
	TimeoutSec       int    `yaml:"timeout_sec"`
}

// S3Config holds object storage settings for uploaded documents.
type S3Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
}

// Configured reports whether uploads can be stored.
func (s S3Config) Configured() bool {
	return s.Region != "" && s.Bucket != ""
}

// RedisConfig enables shared webhook event de-duplication.
type RedisConfig struct {
	URL         string `yaml:"url"`
	EventTTLSec int    `yaml:"event_ttl_sec"`
}

// NotifierConfig controls the scheduled stale-deal notification run.
type NotifierConfig struct {
	Schedule      string `yaml:"schedule"` // 5-field cron; "off" disables
	RunTimeoutSec int    `yaml:"run_timeout_sec"`
}

// ScheduleEnabled reports whether the notifier runs on a timer.
func (n NotifierConfig) ScheduleEnabled() bool {
	return n.Schedule != ScheduleOff
}

// ScheduleOff disables the scheduled notifier run.
const ScheduleOff = "off"

// InboundConfig sizes the webhook processing worker pool.
type InboundConfig struct {
	Workers       int `yaml:"workers"`
	QueueSize     int `yaml:"queue_size"`
	JobTimeoutSec int `yaml:"job_timeout_sec"`
}

// LogConfig controls logger level and format.
type LogConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads a YAML config file from path, overlays secrets from the
// environment (and a .env file when present) and returns a validated Config.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseWithEnv(data, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config without consulting
// the environment.
func Parse(data []byte) (*Config, error) {
	return ParseWithEnv(data, nil)
}

// ParseWithEnv unmarshals YAML bytes, applies environment overrides from
// lookup, fills defaults and validates.
func ParseWithEnv(data []byte, lookup LookupFunc) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the parsed YAML. Names match
// the variables the deployment has always used.
func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("SLACK_BOT_TOKEN", &c.Slack.BotToken)
	str("SLACK_APP_TOKEN", &c.Slack.AppToken)
	str("SLACK_SIGNING_SECRET", &c.Slack.SigningSecret)
	str("SF_CLIENT_ID", &c.Salesforce.ClientID)
	str("SF_CLIENT_SECRET", &c.Salesforce.ClientSecret)
	str("SF_USERNAME", &c.Salesforce.Username)
	str("SF_JWT_KEY_PATH", &c.Salesforce.JWTKeyPath)
	str("SF_INSTANCE_URL", &c.Salesforce.InstanceURL)
	str("AGENT_ID", &c.Agent.AgentID)
	str("GET_KEY_PEOPLE_AGENT_ID", &c.Agent.KeyPeopleAgentID)
	str("AWS_REGION", &c.S3.Region)
	str("AWS_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)
	str("S3_RAG_BUCKET_NAME", &c.S3.Bucket)
	str("DATABASE_DSN", &c.Database.DSN)
	str("REDIS_URL", &c.Redis.URL)
	str("LOG_LEVEL", &c.Log.Level)
	str("ENVIRONMENT", &c.Log.Environment)

	for key, dst := range map[string]*int{
		"PORT":         &c.Server.Port,
		"COLD_DAYS":    &c.Salesforce.ColdDays,
		"STALLED_DAYS": &c.Salesforce.StalledDays,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.ShutdownTimeoutSec == 0 {
		c.Server.ShutdownTimeoutSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "dealwhisperer.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.Salesforce.LoginURL == "" {
		c.Salesforce.LoginURL = "https://login.salesforce.com"
	}
	if c.Salesforce.APIVersion == "" {
		c.Salesforce.APIVersion = "59.0"
	}
	if c.Salesforce.FlowName == "" {
		c.Salesforce.FlowName = "GetColdOpportunities"
	}
	if c.Salesforce.FlowOutput == "" {
		c.Salesforce.FlowOutput = "ColdOppList"
	}
	if c.Salesforce.ColdDays == 0 {
		c.Salesforce.ColdDays = 7
	}
	if c.Salesforce.StalledDays == 0 {
		c.Salesforce.StalledDays = 10
	}
	if c.Agent.BaseURL == "" {
		c.Agent.BaseURL = "https://api.salesforce.com/einstein/ai-agent/v1"
	}
	if c.Agent.TimeoutSec == 0 {
		c.Agent.TimeoutSec = 30
	}
	if c.Redis.EventTTLSec == 0 {
		c.Redis.EventTTLSec = 3600
	}
	if c.Notifier.Schedule == "" {
		c.Notifier.Schedule = "0 * * * *"
	}
	if c.Notifier.RunTimeoutSec == 0 {
		c.Notifier.RunTimeoutSec = 600
	}
	if c.Inbound.Workers == 0 {
		c.Inbound.Workers = 4
	}
	if c.Inbound.QueueSize == 0 {
		c.Inbound.QueueSize = 100
	}
	if c.Inbound.JobTimeoutSec == 0 {
		c.Inbound.JobTimeoutSec = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Environment == "" {
		c.Log.Environment = "development"
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Environment = strings.ToLower(c.Log.Environment)
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Slack.BotToken == "" {
		errs = append(errs, "slack.bot_token is required")
	}
	if c.Slack.SigningSecret == "" {
		errs = append(errs, "slack.signing_secret is required")
	}
	if c.Slack.SocketMode && c.Slack.AppToken == "" {
		errs = append(errs, "slack.app_token is required when socket_mode is enabled")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of sqlite, mysql, postgres", c.Database.Driver))
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" && c.Database.Name == "" {
		errs = append(errs, "database.name or database.dsn is required")
	}
	if c.Notifier.ScheduleEnabled() {
		if _, err := cron.ParseStandard(c.Notifier.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("notifier.schedule: %v", err))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Inbound.Workers < 0 || c.Inbound.QueueSize < 0 {
		errs = append(errs, "inbound.workers and inbound.queue_size must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
