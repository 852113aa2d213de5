package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the sync job
type Config struct {
	ActiveCampaign ActiveCampaignConfig `yaml:"activecampaign"`
	Secrets        SecretsConfig        `yaml:"secrets"`
	FileStore      FileStoreConfig      `yaml:"filestore"`
	Folders        FoldersConfig        `yaml:"folders"`
	Window         WindowConfig         `yaml:"window"`
	Lock           LockConfig           `yaml:"lock"`
	Log            LogConfig            `yaml:"log"`
	RunTimeoutMins int                  `yaml:"run_timeout_minutes"`
}

// ActiveCampaignConfig holds marketing API configuration
type ActiveCampaignConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIToken          string  `yaml:"api_token"`
	BulkImportPath    string  `yaml:"bulk_import_path"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Workers           int     `yaml:"workers"`
	PageSize          int     `yaml:"page_size"`
	MaxPayloadBytes   int     `yaml:"max_payload_bytes"`
	PayloadFraction   float64 `yaml:"payload_fraction"`
	ImportSpacingMS   int     `yaml:"import_spacing_ms"`
	ConstituentField  string  `yaml:"constituent_field"`
}

// Timeout returns the per-request timeout as a duration
func (c ActiveCampaignConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ImportSpacing returns the pause inserted after every bulk import call
func (c ActiveCampaignConfig) ImportSpacing() time.Duration {
	return time.Duration(c.ImportSpacingMS) * time.Millisecond
}

// PayloadCeiling returns the per-call byte budget used by the batch partitioner
// (90% of the 400k API maximum by default).
func (c ActiveCampaignConfig) PayloadCeiling() int {
	return int(float64(c.MaxPayloadBytes) * c.PayloadFraction)
}

// SecretsConfig selects where credentials are read from at startup.
// Provider is one of "env", "aws" or "azure".
type SecretsConfig struct {
	Provider     string `yaml:"provider"`
	Region       string `yaml:"region"`
	VaultURL     string `yaml:"vault_url"`
	APITokenName string `yaml:"api_token_name"`
}

// FileStoreConfig holds the remote file store configuration.
// Type is "s3" or "local".
type FileStoreConfig struct {
	Type       string `yaml:"type"`
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c FileStoreConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// FoldersConfig names the folders inside the file store
type FoldersConfig struct {
	Welcome      string `yaml:"welcome"`
	Segmentation string `yaml:"segmentation"`
	Output       string `yaml:"output"`
	LogDump      string `yaml:"log_dump"`
	RunLogFile   string `yaml:"run_log_file"`
}

// WindowConfig controls the rolling bounced/unsubscribed reporting window
type WindowConfig struct {
	LookbackDays     int    `yaml:"lookback_days"`
	WeeklyMultiplier int    `yaml:"weekly_multiplier"`
	Timezone         string `yaml:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC
func (c WindowConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LockConfig configures the single-writer guard around the run log.
// Redis is preferred; Postgres advisory locks are used when only DatabaseURL is set.
type LockConfig struct {
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`
	Key         string `yaml:"key"`
	TTLSeconds  int    `yaml:"ttl_seconds"`
}

// TTL returns the lock TTL as a duration
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// RunTimeout returns the whole-run deadline
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMins) * time.Minute
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{Log: LogConfig{RedactPII: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	ac := &cfg.ActiveCampaign
	if ac.BulkImportPath == "" {
		ac.BulkImportPath = "/import/bulk_import"
	}
	if ac.TimeoutSeconds == 0 {
		ac.TimeoutSeconds = 60
	}
	if ac.MaxRetries == 0 {
		ac.MaxRetries = 3
	}
	if ac.RequestsPerSecond == 0 {
		ac.RequestsPerSecond = 5
	}
	if ac.Workers == 0 {
		ac.Workers = 5
	}
	if ac.PageSize == 0 {
		ac.PageSize = 100
	}
	if ac.MaxPayloadBytes == 0 {
		ac.MaxPayloadBytes = 400000
	}
	if ac.PayloadFraction == 0 {
		ac.PayloadFraction = 0.9
	}
	if ac.ImportSpacingMS == 0 {
		ac.ImportSpacingMS = 1000
	}
	if ac.ConstituentField == "" {
		ac.ConstituentField = "2"
	}

	if cfg.Secrets.Provider == "" {
		cfg.Secrets.Provider = "env"
	}
	if cfg.Secrets.APITokenName == "" {
		cfg.Secrets.APITokenName = "API_TOKEN_ActiveCampaign"
	}

	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.FileStore.LocalPath == "" {
		cfg.FileStore.LocalPath = "./data"
	}
	if cfg.FileStore.AWSRegion == "" {
		cfg.FileStore.AWSRegion = "ap-southeast-2"
	}

	if cfg.Folders.Welcome == "" {
		cfg.Folders.Welcome = "welcome"
	}
	if cfg.Folders.Segmentation == "" {
		cfg.Folders.Segmentation = "segmentation"
	}
	if cfg.Folders.Output == "" {
		cfg.Folders.Output = "reconciliation"
	}
	if cfg.Folders.LogDump == "" {
		cfg.Folders.LogDump = "logs"
	}
	if cfg.Folders.RunLogFile == "" {
		cfg.Folders.RunLogFile = "runtime_logs.csv"
	}

	if cfg.Window.LookbackDays == 0 {
		cfg.Window.LookbackDays = 7
	}
	if cfg.Window.WeeklyMultiplier == 0 {
		cfg.Window.WeeklyMultiplier = 1
	}
	if cfg.Window.Timezone == "" {
		cfg.Window.Timezone = "Australia/Sydney"
	}

	if cfg.Lock.Key == "" {
		cfg.Lock.Key = "contact-sync:runlog"
	}
	if cfg.Lock.TTLSeconds == 0 {
		cfg.Lock.TTLSeconds = 300
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.RunTimeoutMins == 0 {
		cfg.RunTimeoutMins = 120
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("AC_BASE_URL"); v != "" {
		cfg.ActiveCampaign.BaseURL = v
	}
	if v := os.Getenv("AC_API_TOKEN"); v != "" {
		cfg.ActiveCampaign.APIToken = v
	}
	if v := os.Getenv("AC_REQUESTS_PER_SECOND"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps > 0 {
			cfg.ActiveCampaign.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("SECRETS_PROVIDER"); v != "" {
		cfg.Secrets.Provider = v
	}
	if v := os.Getenv("SECRETS_VAULT_URL"); v != "" {
		cfg.Secrets.VaultURL = v
	}
	if v := os.Getenv("FILESTORE_TYPE"); v != "" {
		cfg.FileStore.Type = v
	}
	if v := os.Getenv("FILESTORE_LOCAL_PATH"); v != "" {
		cfg.FileStore.LocalPath = v
	}
	if v := os.Getenv("FILESTORE_S3_BUCKET"); v != "" {
		cfg.FileStore.S3Bucket = v
	}
	if v := os.Getenv("FILESTORE_S3_REGION"); v != "" {
		cfg.FileStore.AWSRegion = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Lock.RedisURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Lock.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
