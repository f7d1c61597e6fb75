// Package config is the statically typed configuration record for
// cmd/edgectl: a JSON document decoded into a struct tree, the same shape
// as the original config.Read, with secrets looked up from the
// environment rather than stored in the file (main.go does this for the
// Supabase/Axle credentials; this package does it for the broker's
// credentials instead).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// FieldbusConfig configures the Modbus connection to the BESS.
type FieldbusConfig struct {
	Mode             string `json:"mode"` // "tcp" or "serial"
	Host             string `json:"host"`
	SerialDevice     string `json:"serialDevice"`
	SerialBaudRate   int    `json:"serialBaudRate"`
	SerialSlaveID    byte   `json:"serialSlaveId"`
	RetryMaxAttempts int    `json:"retryMaxAttempts"`
	RetryBaseDelayMs int    `json:"retryBaseDelayMs"`
}

// StoreConfig configures the durable local database.
type StoreConfig struct {
	Path                  string `json:"path"`
	TelemetryHours        int    `json:"retentionTelemetryHours"`
	DecisionDays          int    `json:"retentionDecisionDays"`
	AcknowledgedAlarmDays int    `json:"retentionAcknowledgedAlarmDays"`
	SentSyncQueueDays     int    `json:"retentionSentSyncQueueDays"`
}

// BrokerConfig configures the MQTT connection. CredentialsEnvVar, when set,
// names an environment variable holding "username:password" - the secret
// itself is never written to the config file, matching main.go's pattern of
// reading Supabase/Axle keys via os.LookupEnv.
type BrokerConfig struct {
	URL               string `json:"url"`
	TopicRoot         string `json:"topicRoot"`
	CredentialsEnvVar string `json:"credentialsEnvVar"`
	OfflineBufferSize int    `json:"offlineBufferSize"`
}

// ArbitrageConfig mirrors control.ArbitrageParams.
type ArbitrageConfig struct {
	BuyThresholdPrice  float64 `json:"buyThresholdPrice"`
	SellThresholdPrice float64 `json:"sellThresholdPrice"`
	MinSocForSellPct   float64 `json:"minSocForSellPct"`
	MaxSocForBuyPct    float64 `json:"maxSocForBuyPct"`
	MaxChargeKw        float64 `json:"maxChargeKw"`
	MaxDischargeKw     float64 `json:"maxDischargeKw"`
}

// PeakShavingConfig mirrors control.PeakShavingParams.
type PeakShavingConfig struct {
	DemandLimitKw   float64 `json:"demandLimitKw"`
	TriggerPercent  float64 `json:"triggerPercent"`
	MinSocPct       float64 `json:"minSocPct"`
	RechargeStartHr int     `json:"rechargeStartHour"`
	RechargeEndHr   int     `json:"rechargeEndHour"`
	MaxChargeKw     float64 `json:"maxChargeKw"`
	MaxDischargeKw  float64 `json:"maxDischargeKw"`
}

// SolarConfig mirrors control.SolarParams.
type SolarConfig struct {
	MinExcessKw      float64 `json:"minExcessKw"`
	TargetSocPct     float64 `json:"targetSocPct"`
	MaxChargeKw      float64 `json:"maxChargeKw"`
	NightDischargeOn bool    `json:"nightDischargeOn"`
	MaxDischargeKw   float64 `json:"maxDischargeKw"`
}

// SiteConfig identifies the site and inverter scale used across the
// control loop.
type SiteConfig struct {
	SiteID         uuid.UUID `json:"siteId"`
	NominalPowerKw float64   `json:"nominalPowerKw"`
	TimezoneName   string    `json:"timezone"`
}

// Config is the top-level configuration record decoded from the config file
// named on the command line, matching main.go's flag.StringVar(&path, "f", ...)
// convention.
type Config struct {
	Site              SiteConfig        `json:"site"`
	Fieldbus          FieldbusConfig    `json:"fieldbus"`
	Store             StoreConfig       `json:"store"`
	Broker            BrokerConfig      `json:"broker"`
	Arbitrage         ArbitrageConfig   `json:"arbitrage"`
	PeakShaving       PeakShavingConfig `json:"peakShaving"`
	Solar             SolarConfig       `json:"solar"`
	CyclePeriodMs     int               `json:"cyclePeriodMs"`
	WatchdogTimeoutMs int               `json:"watchdogTimeoutMs"`
}

// Read loads and decodes the JSON configuration file at path.
func Read(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// CyclePeriod returns the control loop period, defaulting to 5s (the
// default sample interval) when unset.
func (c Config) CyclePeriod() time.Duration {
	if c.CyclePeriodMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.CyclePeriodMs) * time.Millisecond
}

// WatchdogTimeout returns the configured watchdog timeout, defaulting to 30s.
func (c Config) WatchdogTimeout() time.Duration {
	if c.WatchdogTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.WatchdogTimeoutMs) * time.Millisecond
}

// BrokerCredentials looks up the broker's "username:password" secret from
// the environment variable named in BrokerConfig.CredentialsEnvVar, exactly
// as main.go looks up Supabase/Axle secrets via os.LookupEnv.
func (c Config) BrokerCredentials() (string, bool) {
	if c.Broker.CredentialsEnvVar == "" {
		return "", false
	}
	return os.LookupEnv(c.Broker.CredentialsEnvVar)
}
