// Package config loads medledger settings from a YAML file overlaid with
// MEDLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roach88/medledger/internal/ledger"
)

// EnvPrefix prefixes every environment override, e.g. MEDLEDGER_CHANNEL.
const EnvPrefix = "medledger"

// DefaultFile is read from the working directory when no file is given.
const DefaultFile = "medledger.yaml"

// Config holds every recognized option.
type Config struct {
	DatabasePath      string        `yaml:"databasePath"      envconfig:"DATABASE_PATH"`
	NetworkConfigPath string        `yaml:"networkConfigPath" envconfig:"NETWORK_CONFIG_PATH"`
	WalletPath        string        `yaml:"walletPath"        envconfig:"WALLET_PATH"`
	Channel           string        `yaml:"channel"           envconfig:"CHANNEL"`
	Chaincode         string        `yaml:"chaincode"         envconfig:"CHAINCODE"`
	MSPID             string        `yaml:"mspId"             envconfig:"MSP_ID"`
	Identity          string        `yaml:"identity"          envconfig:"IDENTITY"`
	CallTimeout       time.Duration `yaml:"callTimeout"       envconfig:"CALL_TIMEOUT"`
	ConnectTimeout    time.Duration `yaml:"connectTimeout"    envconfig:"CONNECT_TIMEOUT"`
	BatchConcurrency  int           `yaml:"batchConcurrency"  envconfig:"BATCH_CONCURRENCY"`
	MetricsAddress    string        `yaml:"metricsAddress"    envconfig:"METRICS_ADDRESS"`
	MonitorInterval   time.Duration `yaml:"monitorInterval"   envconfig:"MONITOR_INTERVAL"`
	AccessUser        string        `yaml:"accessUser"        envconfig:"ACCESS_USER"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DatabasePath:      "medledger.db",
		NetworkConfigPath: "network-config.yaml",
		WalletPath:        "wallet",
		Channel:           "healthcare-channel",
		Chaincode:         "medical-records",
		MSPID:             "HospitalMSP",
		Identity:          "admin",
		CallTimeout:       ledger.DefaultCallTimeout,
		ConnectTimeout:    ledger.DefaultConnectTimeout,
		BatchConcurrency:  4,
		MetricsAddress:    "localhost:9464",
		MonitorInterval:   5 * time.Minute,
		AccessUser:        "medledger",
	}
}

// Load builds the configuration: defaults, then the YAML file, then the
// environment. An empty path falls back to DefaultFile if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	var errs []error
	for _, f := range []struct{ name, value string }{
		{"databasePath", c.DatabasePath},
		{"networkConfigPath", c.NetworkConfigPath},
		{"walletPath", c.WalletPath},
		{"channel", c.Channel},
		{"chaincode", c.Chaincode},
		{"identity", c.Identity},
	} {
		if f.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", f.name))
		}
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("callTimeout must be positive"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connectTimeout must be positive"))
	}
	if c.BatchConcurrency < 1 {
		errs = append(errs, errors.New("batchConcurrency must be at least 1"))
	}
	if c.MonitorInterval <= 0 {
		errs = append(errs, errors.New("monitorInterval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Ledger returns the ledger client settings.
func (c *Config) Ledger() ledger.Config {
	return ledger.Config{
		NetworkConfigPath: c.NetworkConfigPath,
		WalletPath:        c.WalletPath,
		Channel:           c.Channel,
		Chaincode:         c.Chaincode,
		MSPID:             c.MSPID,
		Identity:          c.Identity,
		CallTimeout:       c.CallTimeout,
		ConnectTimeout:    c.ConnectTimeout,
	}
}
