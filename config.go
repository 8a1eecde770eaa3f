package warden

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/vantus/warden/service/approval"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the engine configuration. It
// can be populated from JSON or YAML; the zero-value is useful – all nested
// fields inherit their package defaults.
type Config struct {
	Trigger  approval.TriggerConfig  `json:"trigger" yaml:"trigger"`
	Workflow approval.WorkflowConfig `json:"workflow" yaml:"workflow"`
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	return &Config{
		Workflow: approval.DefaultWorkflowConfig(),
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if err := c.Trigger.Validate(); err != nil {
		return err
	}
	return c.Workflow.Validate()
}

// LoadConfig reads a YAML configuration from the supplied URL (any scheme
// supported by viant/afs: file, mem, s3, gs, …) and validates it.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	config := DefaultConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
