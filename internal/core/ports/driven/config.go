package driven

import "github.com/apache/stanbol-sub040/internal/core/domain"

// ConfigStore persists the Yard configuration.
type ConfigStore interface {
	// Config returns a copy of the current configuration.
	Config() domain.YardConfig

	// Update validates and persists a whole configuration.
	Update(cfg domain.YardConfig) error

	// Get returns a single option formatted as a string.
	// Returns domain.ErrNotFound for an unknown key.
	Get(key string) (string, error)

	// Set parses, validates and persists a single option.
	Set(key, value string) error

	// Path returns the configuration file path.
	Path() string
}
