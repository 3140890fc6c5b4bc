package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CacheStrategy governs which upstream entities a Yard materialises locally.
type CacheStrategy string

// Available cache strategies.
const (
	// CacheAll persists every entity delivered by the upstream source.
	CacheAll CacheStrategy = "all"

	// CacheUsed persists an entity only once it has been fetched with Get.
	CacheUsed CacheStrategy = "used"

	// CacheNone never persists upstream entities.
	CacheNone CacheStrategy = "none"
)

// ParseCacheStrategy parses a strategy name.
func ParseCacheStrategy(s string) (CacheStrategy, error) {
	strategy := CacheStrategy(strings.ToLower(strings.TrimSpace(s)))
	if !strategy.IsValid() {
		return "", fmt.Errorf("%w: cache strategy %q", ErrInvalidInput, s)
	}
	return strategy, nil
}

// IsValid returns true if the strategy is recognised.
func (s CacheStrategy) IsValid() bool {
	switch s {
	case CacheAll, CacheUsed, CacheNone:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s CacheStrategy) String() string {
	return string(s)
}

// CacheingLevel governs which fields of an entity a Yard stores.
type CacheingLevel string

// Available cacheing levels.
const (
	// LevelBase stores only the configured base fields.
	LevelBase CacheingLevel = "base"

	// LevelSpecial stores every field.
	LevelSpecial CacheingLevel = "special"
)

// ParseCacheingLevel parses a level name.
func ParseCacheingLevel(s string) (CacheingLevel, error) {
	level := CacheingLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsValid() {
		return "", fmt.Errorf("%w: cacheing level %q", ErrInvalidInput, s)
	}
	return level, nil
}

// IsValid returns true if the level is recognised.
func (l CacheingLevel) IsValid() bool {
	return l == LevelBase || l == LevelSpecial
}

// String returns the string representation.
func (l CacheingLevel) String() string {
	return string(l)
}

// Rank orders levels: base < special.
func (l CacheingLevel) Rank() int {
	if l == LevelSpecial {
		return 1
	}
	return 0
}

// BackendType identifies the index implementation behind a Yard.
type BackendType string

// Available backends.
const (
	BackendMemory BackendType = "memory"
	BackendSQLite BackendType = "sqlite"
	BackendSolr   BackendType = "solr"
)

// BackendConfig locates the index.
type BackendConfig struct {
	// Type selects the index implementation.
	Type BackendType

	// Path is the data directory of the sqlite backend.
	Path string

	// URL is the base URL of the Solr server.
	URL string

	// Core is the Solr core or collection name.
	Core string

	// RequestsPerSecond throttles calls to a remote backend. Zero disables.
	RequestsPerSecond float64

	// Timeout bounds a single remote call.
	Timeout time.Duration

	// ExternalSchema means the Solr core already defines the yard fields,
	// so the schema is not changed through the Schema API.
	ExternalSchema bool
}

// IndexingConfig tunes the incremental indexing driver.
type IndexingConfig struct {
	// Concurrency is the number of entities committed in parallel.
	Concurrency int

	// Interval is the scheduler polling period. Zero disables scheduling.
	Interval time.Duration

	// Sources are the directories indexed by the filesystem source.
	Sources []string

	// ScoreField names a numeric field scoring entities for indexing.
	// Entities with a negative score are kept out of the Yard.
	ScoreField string

	// Exclude lists entity ids never indexed.
	Exclude []string
}

// YardConfig is the configuration a Yard is constructed with.
type YardConfig struct {
	// ID identifies the Yard; persisted settings are keyed by it.
	ID string

	// Name is a human readable name.
	Name string

	// Strategy is the cache strategy.
	Strategy CacheStrategy

	// Level is the cacheing level.
	Level CacheingLevel

	// BaseFields are the fields stored at LevelBase.
	BaseFields []string

	// DefaultLimit applies to queries without a limit.
	DefaultLimit int

	// MaxLimit caps query limits. Zero means no cap.
	MaxLimit int

	// Upstream is the directory of the site the Yard caches. Empty means
	// the Yard has no upstream source.
	Upstream string

	Backend  BackendConfig
	Indexing IndexingConfig
}

// DefaultYardConfig returns sensible defaults.
func DefaultYardConfig() YardConfig {
	return YardConfig{
		ID:           "default",
		Name:         "Default Yard",
		Strategy:     CacheAll,
		Level:        LevelSpecial,
		DefaultLimit: 10,
		MaxLimit:     1000,
		Backend: BackendConfig{
			Type:    BackendMemory,
			Timeout: 30 * time.Second,
		},
		Indexing: IndexingConfig{
			Concurrency: 4,
		},
	}
}

// Validate checks the configuration.
func (c *YardConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: yard id is required", ErrInvalidInput)
	}
	if !c.Strategy.IsValid() {
		return fmt.Errorf("%w: cache strategy %q", ErrInvalidInput, c.Strategy)
	}
	if !c.Level.IsValid() {
		return fmt.Errorf("%w: cacheing level %q", ErrInvalidInput, c.Level)
	}
	if c.Level == LevelBase && len(c.BaseFields) == 0 {
		return fmt.Errorf("%w: base level requires base fields", ErrInvalidInput)
	}
	for _, f := range c.BaseFields {
		if !IsAbsoluteURI(f) {
			return fmt.Errorf("%w: base field %q is not an absolute URI", ErrInvalidInput, f)
		}
	}
	if c.DefaultLimit < 0 || c.MaxLimit < 0 {
		return fmt.Errorf("%w: negative query limit", ErrInvalidInput)
	}
	if c.MaxLimit > 0 && c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("%w: default limit exceeds max limit", ErrInvalidInput)
	}
	switch c.Backend.Type {
	case BackendMemory, BackendSQLite:
	case BackendSolr:
		if c.Backend.URL == "" || c.Backend.Core == "" {
			return fmt.Errorf("%w: solr backend requires url and core", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: backend %q", ErrUnsupportedType, c.Backend.Type)
	}
	if c.Indexing.Concurrency < 0 {
		return fmt.Errorf("%w: negative indexing concurrency", ErrInvalidInput)
	}
	if c.Indexing.Interval < 0 {
		return fmt.Errorf("%w: negative indexing interval", ErrInvalidInput)
	}
	if c.Indexing.ScoreField != "" && !IsAbsoluteURI(c.Indexing.ScoreField) {
		return fmt.Errorf("%w: score field %q is not an absolute URI", ErrInvalidInput, c.Indexing.ScoreField)
	}
	return nil
}

// Clone returns a deep copy.
func (c YardConfig) Clone() YardConfig {
	c.BaseFields = append([]string(nil), c.BaseFields...)
	c.Indexing.Sources = append([]string(nil), c.Indexing.Sources...)
	c.Indexing.Exclude = append([]string(nil), c.Indexing.Exclude...)
	return c
}

// Settings returns the part of the configuration a backend persists with
// its entities. The data stored is only valid under these settings.
func (c *YardConfig) Settings() map[string]string {
	fields := append([]string(nil), c.BaseFields...)
	sort.Strings(fields)
	return map[string]string{
		SettingYardID:   c.ID,
		SettingStrategy: string(c.Strategy),
		SettingLevel:    string(c.Level),
		SettingBase:     strings.Join(fields, " "),
	}
}

// Settings keys persisted by a backend alongside the entities.
const (
	SettingYardID   = "yard.id"
	SettingStrategy = "yard.strategy"
	SettingLevel    = "yard.level"
	SettingBase     = "yard.base_fields"
)

// IndexingState tracks incremental indexing progress for one source.
type IndexingState struct {
	// SourceID identifies the IndexingSource.
	SourceID string

	// Epoch is the source dataset generation last indexed.
	Epoch int64

	// Revision is the last revision fully indexed.
	Revision int64

	// LastIndexed is when the last run completed.
	LastIndexed time.Time
}
