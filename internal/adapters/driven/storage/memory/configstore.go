package memory

import (
	"sync"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is an in-memory implementation of driven.ConfigStore for testing.
type ConfigStore struct {
	mu     sync.RWMutex
	config domain.YardConfig
}

// NewConfigStore creates a new in-memory config store holding cfg.
func NewConfigStore(cfg domain.YardConfig) *ConfigStore {
	return &ConfigStore{
		config: cfg.Clone(),
	}
}

// Config returns a copy of the current configuration.
func (s *ConfigStore) Config() domain.YardConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone()
}

// Update validates and stores a whole configuration.
func (s *ConfigStore) Update(cfg domain.YardConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg.Clone()
	return nil
}

// Get returns a single option formatted as a string.
func (s *ConfigStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Lookup(key)
}

// Set parses, validates and stores a single option.
func (s *ConfigStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.config.Clone()
	if err := next.Assign(key, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.config = next
	return nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return ":memory:"
}
