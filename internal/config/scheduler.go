package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SchedulerConfig holds configuration for the scheduler process.
type SchedulerConfig struct {
	RelayServiceURL          string `mapstructure:"RELAY_SERVICE_URL"`
	ReleaseTriggerSecret     string `mapstructure:"RELEASE_TRIGGER_SECRET"`
	EscrowReleaseJobSchedule string `mapstructure:"ESCROW_RELEASE_JOB_SCHEDULE"`
	ReleaseRequestTimeoutSec int    `mapstructure:"RELEASE_REQUEST_TIMEOUT_SECONDS"`
}

// RequestTimeout bounds a single trigger call.
func (c SchedulerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.ReleaseRequestTimeoutSec) * time.Second
}

// LoadSchedulerConfig reads scheduler configuration from environment variables.
func LoadSchedulerConfig() (*SchedulerConfig, error) {
	viper.SetDefault("ESCROW_RELEASE_JOB_SCHEDULE", "*/15 * * * *") // Every 15 minutes.
	viper.SetDefault("RELEASE_REQUEST_TIMEOUT_SECONDS", 330)
	viper.AutomaticEnv()

	_ = viper.BindEnv("RELAY_SERVICE_URL")
	_ = viper.BindEnv("RELEASE_TRIGGER_SECRET", "RELEASE_TRIGGER_SECRET", "CRON_SECRET")
	_ = viper.BindEnv("ESCROW_RELEASE_JOB_SCHEDULE")
	_ = viper.BindEnv("RELEASE_REQUEST_TIMEOUT_SECONDS")

	var config SchedulerConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.RelayServiceURL = strings.TrimSpace(config.RelayServiceURL)
	config.ReleaseTriggerSecret = strings.TrimSpace(config.ReleaseTriggerSecret)
	config.EscrowReleaseJobSchedule = strings.TrimSpace(config.EscrowReleaseJobSchedule)
	if config.RelayServiceURL == "" {
		return nil, errors.New("RELAY_SERVICE_URL is required")
	}
	if config.ReleaseTriggerSecret == "" {
		return nil, errors.New("RELEASE_TRIGGER_SECRET (or CRON_SECRET) is required")
	}
	if config.ReleaseRequestTimeoutSec <= 0 {
		config.ReleaseRequestTimeoutSec = 330
	}

	return &config, nil
}
