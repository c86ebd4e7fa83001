package vaultflow

import (
	"fmt"

	"github.com/vaultflow/vaultflow/service/classifier"
	"github.com/vaultflow/vaultflow/service/inbox"
	"github.com/vaultflow/vaultflow/service/scheduler"
	"github.com/vaultflow/vaultflow/service/watcher"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from JSON, YAML, environment variables, etc. The zero-value is
// useful - all nested fields inherit their package defaults.
type Config struct {
	// BaseURL is the vault root, e.g. /home/user/vault or mem://vault.
	BaseURL string `json:"baseURL" yaml:"baseURL"`
	// Agent names this engine instance in notes and audit blocks.
	Agent string `json:"agent" yaml:"agent"`

	Watcher    watcher.Config    `json:"watcher" yaml:"watcher"`
	Inbox      inbox.Config      `json:"inbox" yaml:"inbox"`
	Scheduler  scheduler.Config  `json:"scheduler" yaml:"scheduler"`
	Classifier classifier.Config `json:"classifier" yaml:"classifier"`
}

// DefaultConfig returns a Config populated with the same defaults the
// sub-package constructors apply. Callers may modify the returned struct
// before passing it to New.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:    baseURL,
		Agent:      "vaultflow",
		Watcher:    watcher.DefaultConfig(),
		Inbox:      inbox.DefaultConfig(),
		Scheduler:  scheduler.DefaultConfig(),
		Classifier: classifier.DefaultConfig(),
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.BaseURL == "" {
		return fmt.Errorf("baseURL must not be empty")
	}
	if c.Watcher.PollInterval < 0 {
		return fmt.Errorf("watcher.pollInterval must be >= 0")
	}
	if c.Inbox.PollInterval < 0 {
		return fmt.Errorf("inbox.pollInterval must be >= 0")
	}
	return nil
}
