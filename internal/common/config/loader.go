// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads config.yaml from the usual locations, merges config.<env>.yaml
// on top and applies environment overrides such as RECOVERY_BREAKER_THRESHOLD.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return build(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up to the project root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// setDefaults registers every defaulted key so env overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "extension-recovery")
	v.SetDefault("app.environment", "development")

	v.SetDefault("recovery.pattern_window", 15*time.Minute)
	v.SetDefault("recovery.pattern_threshold", 5)
	v.SetDefault("recovery.breaker_threshold", 10)
	v.SetDefault("recovery.breaker_reset_window", 5*time.Minute)
	v.SetDefault("recovery.failure_count_window", time.Hour)
	v.SetDefault("recovery.attempt_window", time.Hour)
	v.SetDefault("recovery.statistics_window", 24*time.Hour)
	v.SetDefault("recovery.history_retention", 24*time.Hour)
	v.SetDefault("recovery.history_max_entries", 10000)
	v.SetDefault("recovery.breaker_retry_after", 60*time.Second)
	v.SetDefault("recovery.in_progress_retry_after", 5*time.Second)

	v.SetDefault("integration.max_retries", 3)
	v.SetDefault("integration.max_wait", 60*time.Second)
	v.SetDefault("integration.cache_ttl", 10*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.key_prefix", "extension-recovery:")
	v.SetDefault("redis.degradation_ttl", 15*time.Minute)

	v.SetDefault("keycloak.enabled", false)
	v.SetDefault("keycloak.timeout", 30*time.Second)

	v.SetDefault("service_recovery.enabled", false)
	v.SetDefault("service_recovery.timeout", 10*time.Second)

	v.SetDefault("alerting.aws.region", "us-east-1")
	v.SetDefault("alerting.sns.enabled", false)
	v.SetDefault("alerting.ses.enabled", false)
	v.SetDefault("alerting.elasticsearch.enabled", false)
	v.SetDefault("alerting.elasticsearch.index", "extension-escalations")

	v.SetDefault("camunda.enabled", false)
	v.SetDefault("camunda.max_jobs_active", 10)
	v.SetDefault("camunda.timeout", 30*time.Second)
	v.SetDefault("camunda.request_timeout", 30*time.Second)

	v.SetDefault("admin.address", ":8085")
	v.SetDefault("admin.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validateConfig validates the fields each enabled component needs.
func validateConfig(cfg *Config) error {
	if cfg.Recovery.BreakerThreshold <= 0 {
		return fmt.Errorf("recovery.breaker_threshold must be positive")
	}
	if cfg.Integration.MaxRetries < 0 {
		return fmt.Errorf("integration.max_retries must not be negative")
	}

	if cfg.Redis.Enabled && cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}

	if cfg.Keycloak.Enabled {
		if cfg.Keycloak.URL == "" || cfg.Keycloak.Realm == "" {
			return fmt.Errorf("keycloak.url and keycloak.realm are required when keycloak is enabled")
		}
		if cfg.Keycloak.ClientID == "" {
			return fmt.Errorf("keycloak.client_id is required when keycloak is enabled")
		}
	}

	if cfg.ServiceRecovery.Enabled && cfg.ServiceRecovery.BaseURL == "" {
		return fmt.Errorf("service_recovery.base_url is required when service recovery is enabled")
	}

	if cfg.Alerting.SNS.Enabled && cfg.Alerting.SNS.TopicARN == "" {
		return fmt.Errorf("alerting.sns.topic_arn is required when sns alerting is enabled")
	}
	if cfg.Alerting.SES.Enabled && (cfg.Alerting.SES.FromEmail == "" || len(cfg.Alerting.SES.ToEmails) == 0) {
		return fmt.Errorf("alerting.ses.from_email and alerting.ses.to_emails are required when ses alerting is enabled")
	}
	if cfg.Alerting.Elasticsearch.Enabled && len(cfg.Alerting.Elasticsearch.GetAddresses()) == 0 {
		return fmt.Errorf("alerting.elasticsearch.addresses or url is required when elasticsearch alerting is enabled")
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	return nil
}
