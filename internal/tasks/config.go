// Package tasks provides a bounded background task runner with cancellation.
package tasks

import "runtime"

// Config defines the runner configuration.
type Config struct {
	// Workers is the maximum number of non-blocking tasks running at once.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers: runtime.NumCPU(),
	}
}

// workerLimit returns the configured limit, never less than one.
func (c *Config) workerLimit() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}
