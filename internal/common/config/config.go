// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App             AppConfig             `mapstructure:"app"`
	Recovery        RecoveryConfig        `mapstructure:"recovery"`
	Integration     IntegrationConfig     `mapstructure:"integration"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Keycloak        KeycloakConfig        `mapstructure:"keycloak"`
	ServiceRecovery ServiceRecoveryConfig `mapstructure:"service_recovery"`
	Alerting        AlertingConfig        `mapstructure:"alerting"`
	Camunda         CamundaConfig         `mapstructure:"camunda"`
	Admin           AdminConfig           `mapstructure:"admin"`
	Logging         LoggingConfig         `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// RecoveryConfig holds the recovery manager tunables.
type RecoveryConfig struct {
	PatternWindow        time.Duration `mapstructure:"pattern_window"`
	PatternThreshold     int           `mapstructure:"pattern_threshold"`
	BreakerThreshold     int           `mapstructure:"breaker_threshold"`
	BreakerResetWindow   time.Duration `mapstructure:"breaker_reset_window"`
	FailureCountWindow   time.Duration `mapstructure:"failure_count_window"`
	AttemptWindow        time.Duration `mapstructure:"attempt_window"`
	StatisticsWindow     time.Duration `mapstructure:"statistics_window"`
	HistoryRetention     time.Duration `mapstructure:"history_retention"`
	HistoryMaxEntries    int           `mapstructure:"history_max_entries"`
	BreakerRetryAfter    time.Duration `mapstructure:"breaker_retry_after"`
	InProgressRetryAfter time.Duration `mapstructure:"in_progress_retry_after"`
}

// IntegrationConfig holds settings for the retry wrapper.
type IntegrationConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	MaxWait    time.Duration `mapstructure:"max_wait"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Address        string        `mapstructure:"address"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	DegradationTTL time.Duration `mapstructure:"degradation_ttl"`
}

type KeycloakConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	Realm        string        `mapstructure:"realm"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ServiceRecoveryConfig points at the service that restarts extension services.
type ServiceRecoveryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AlertingConfig holds the escalation channels.
type AlertingConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SES struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		ToEmails  []string `mapstructure:"to_emails"`
	} `mapstructure:"ses"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetAddresses returns the configured addresses, falling back to URL.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type CamundaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BrokerAddress  string        `mapstructure:"broker_address"`
	MaxJobsActive  int           `mapstructure:"max_jobs_active"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AdminConfig holds the operator HTTP surface settings.
type AdminConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
