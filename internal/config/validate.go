package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eigerco/auditor/pkg/log"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	// Params
	if err := c.Params.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("params: %w", err))
	}

	// Node
	if err := c.Node.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("node: %w", err))
	}

	// Forest
	if c.Forest.Depth < 1 || c.Forest.Depth > 63 {
		errs = append(errs, fmt.Errorf("forest: depth must be in [1, 63], got %d", c.Forest.Depth))
	}

	// Store
	if c.Store.CacheSize < 0 {
		errs = append(errs, errors.New("store: cache_size must not be negative"))
	}

	// Bus
	if err := c.Bus.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bus: %w", err))
	}

	// Log
	if _, err := log.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if _, err := log.ParseLoggerType(c.Log.Type); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the node configuration.
func (c *NodeConfig) Validate() error {
	var errs []error

	if c.StepInterval <= 0 {
		errs = append(errs, errors.New("step_interval must be positive"))
	}
	if c.RequestBuffer < 0 {
		errs = append(errs, errors.New("request_buffer must not be negative"))
	}

	return errors.Join(errs...)
}

// Validate checks the bus configuration. Nothing is required while
// publishing is disabled.
func (c *BusConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error

	if c.URL == "" && !c.Embedded.Enabled {
		errs = append(errs, errors.New("url is required"))
	}
	if c.Embedded.Enabled && (c.Embedded.Port < -1 || c.Embedded.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid embedded port %d", c.Embedded.Port))
	}
	if c.Stream != "" && strings.ContainsAny(c.Stream, " .*>") {
		errs = append(errs, fmt.Errorf("invalid stream %q", c.Stream))
	}
	if c.SubjectPrefix == "" || strings.ContainsAny(c.SubjectPrefix, " *>") {
		errs = append(errs, fmt.Errorf("invalid subject_prefix %q", c.SubjectPrefix))
	}

	return errors.Join(errs...)
}
