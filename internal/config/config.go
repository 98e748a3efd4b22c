// Package config loads the banksync preferences file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/banksync/internal/bog"
)

// Config is the top-level banksync.yaml configuration.
type Config struct {
	API      APIConfig       `yaml:"api"`
	Accounts []AccountConfig `yaml:"accounts"`
	Excluded []string        `yaml:"excluded,omitempty"`
}

// APIConfig carries the Business Online API endpoint and credentials.
type APIConfig struct {
	BaseURL string `yaml:"base_url,omitempty"` // empty selects production
	Token   string `yaml:"token"`
}

// AccountConfig is one configured bank account.
type AccountConfig struct {
	ID       string `yaml:"id"`
	Currency string `yaml:"currency"`
}

// Load reads and validates a banksync.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the fields a sync run requires.
func (c *Config) Validate() error {
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}
	seen := make(map[string]bool)
	for i, acc := range c.Accounts {
		if acc.ID == "" {
			return fmt.Errorf("accounts[%d]: id is required", i)
		}
		if len(acc.Currency) != 3 {
			return fmt.Errorf("accounts[%d] (%s): currency must be a 3-letter ISO code, got %q", i, acc.ID, acc.Currency)
		}
		key := acc.ID + "/" + acc.Currency
		if seen[key] {
			return fmt.Errorf("accounts[%d]: duplicate account %s", i, key)
		}
		seen[key] = true
	}
	return nil
}

// IsExcluded reports whether the host excludes the account from this run.
func (c *Config) IsExcluded(accountID string) bool {
	for _, id := range c.Excluded {
		if id == accountID {
			return true
		}
	}
	return false
}

// BankAccounts returns the configured accounts as bank account descriptors,
// in configuration order.
func (c *Config) BankAccounts() []bog.Account {
	accounts := make([]bog.Account, len(c.Accounts))
	for i, acc := range c.Accounts {
		accounts[i] = bog.Account{ID: acc.ID, Currency: acc.Currency}
	}
	return accounts
}
