package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is a file-based implementation of driven.ConfigStore using TOML.
// Configuration is stored in config.toml within the yard config directory.
// Options missing from the file keep their default value.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	config   domain.YardConfig
}

// document is the on-disk layout of config.toml.
type document struct {
	Yard     yardTable     `toml:"yard"`
	Backend  backendTable  `toml:"backend"`
	Indexing indexingTable `toml:"indexing"`
}

type yardTable struct {
	ID           string   `toml:"id"`
	Name         string   `toml:"name"`
	Strategy     string   `toml:"strategy"`
	Level        string   `toml:"level"`
	BaseFields   []string `toml:"base_fields"`
	DefaultLimit int      `toml:"default_limit"`
	MaxLimit     int      `toml:"max_limit"`
	Upstream     string   `toml:"upstream,omitempty"`
}

type backendTable struct {
	Type    string  `toml:"type"`
	Path    string  `toml:"path,omitempty"`
	URL     string  `toml:"url,omitempty"`
	Core    string  `toml:"core,omitempty"`
	Rate    float64 `toml:"rate,omitempty"`
	Timeout string  `toml:"timeout"`

	ExternalSchema bool `toml:"external_schema,omitempty"`
}

type indexingTable struct {
	Concurrency int      `toml:"concurrency"`
	Interval    string   `toml:"interval"`
	Sources     []string `toml:"sources"`
	ScoreField  string   `toml:"score_field,omitempty"`
	Exclude     []string `toml:"exclude"`
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.yard/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		configDir = filepath.Join(home, ".yard")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
		config:   domain.DefaultYardConfig(),
	}

	if err := s.Load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Config returns a copy of the current configuration.
func (s *ConfigStore) Config() domain.YardConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone()
}

// Update validates and persists a whole configuration.
func (s *ConfigStore) Update(cfg domain.YardConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = cfg.Clone()
	return s.save()
}

// Get returns a single option formatted as a string.
func (s *ConfigStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Lookup(key)
}

// Set parses, validates and persists a single option. An invalid value
// leaves the configuration unchanged.
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
	return s.save()
}

// Save persists the current configuration to disk.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save writes configuration to the TOML file (caller must hold lock).
func (s *ConfigStore) save() error {
	data, err := toml.Marshal(toDocument(s.config))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// Write with restricted permissions
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Load reads configuration from the TOML file. A missing file leaves the
// defaults in place. Unknown keys are rejected so typos surface early.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet - that's fine, keep defaults
			s.config = domain.DefaultYardConfig()
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	doc := toDocument(domain.DefaultYardConfig())
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strict.String())
		}
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}

	cfg, err := fromDocument(doc)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", s.filePath, err)
	}
	s.config = cfg
	return nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

func toDocument(c domain.YardConfig) document {
	return document{
		Yard: yardTable{
			ID:           c.ID,
			Name:         c.Name,
			Strategy:     string(c.Strategy),
			Level:        string(c.Level),
			BaseFields:   append([]string{}, c.BaseFields...),
			DefaultLimit: c.DefaultLimit,
			MaxLimit:     c.MaxLimit,
			Upstream:     c.Upstream,
		},
		Backend: backendTable{
			Type:    string(c.Backend.Type),
			Path:    c.Backend.Path,
			URL:     c.Backend.URL,
			Core:    c.Backend.Core,
			Rate:    c.Backend.RequestsPerSecond,
			Timeout: c.Backend.Timeout.String(),

			ExternalSchema: c.Backend.ExternalSchema,
		},
		Indexing: indexingTable{
			Concurrency: c.Indexing.Concurrency,
			Interval:    c.Indexing.Interval.String(),
			Sources:     append([]string{}, c.Indexing.Sources...),
			ScoreField:  c.Indexing.ScoreField,
			Exclude:     append([]string{}, c.Indexing.Exclude...),
		},
	}
}

func fromDocument(d document) (domain.YardConfig, error) {
	c := domain.YardConfig{
		ID:           d.Yard.ID,
		Name:         d.Yard.Name,
		Strategy:     domain.CacheStrategy(d.Yard.Strategy),
		Level:        domain.CacheingLevel(d.Yard.Level),
		BaseFields:   nonEmpty(d.Yard.BaseFields),
		DefaultLimit: d.Yard.DefaultLimit,
		MaxLimit:     d.Yard.MaxLimit,
		Upstream:     d.Yard.Upstream,
		Backend: domain.BackendConfig{
			Type:              domain.BackendType(d.Backend.Type),
			Path:              d.Backend.Path,
			URL:               d.Backend.URL,
			Core:              d.Backend.Core,
			RequestsPerSecond: d.Backend.Rate,
			ExternalSchema:    d.Backend.ExternalSchema,
		},
		Indexing: domain.IndexingConfig{
			Concurrency: d.Indexing.Concurrency,
			Sources:     nonEmpty(d.Indexing.Sources),
			ScoreField:  d.Indexing.ScoreField,
			Exclude:     nonEmpty(d.Indexing.Exclude),
		},
	}

	var err error
	if c.Backend.Timeout, err = parseDuration("backend.timeout", d.Backend.Timeout); err != nil {
		return c, err
	}
	if c.Indexing.Interval, err = parseDuration("indexing.interval", d.Indexing.Interval); err != nil {
		return c, err
	}
	return c, nil
}

func parseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a duration", domain.ErrInvalidInput, key, v)
	}
	return d, nil
}

func nonEmpty(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	return list
}
