package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/apache/stanbol-sub040/internal/core/domain"
	"github.com/apache/stanbol-sub040/internal/core/ports/driven"
	"github.com/apache/stanbol-sub040/internal/logger"
)

// Ensure Source implements the interfaces.
var (
	_ driven.IndexingSource = (*Source)(nil)
	_ driven.EntitySource   = (*Source)(nil)
)

// fileExt is the extension of entity files.
const fileExt = ".json"

// Source serves the entities stored as JSON files under a directory tree,
// one representation per file. Every file change observed through Refresh
// or Watch advances the revision by one.
type Source struct {
	name string
	root string

	mu       sync.RWMutex
	epoch    int64
	revision int64
	paths    map[string]string // entity id -> file path
	ids      map[string]string // file path -> entity id
	log      []change

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
}

// change records the revision at which an entity changed.
type change struct {
	revision int64
	id       string
}

// New creates a source over root and scans it. The first epoch is a
// digest of the entity files found (path, size and modification time), so
// a reopened source keeps its epoch only when nothing changed while it was
// closed. Revisions restart at 0 with every process.
func New(name, root string) (*Source, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: source name is required", domain.ErrInvalidInput)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, root)
	}

	s := &Source{name: name, root: root}
	digest, err := s.scan()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.epoch = epochOf(digest)
	s.mu.Unlock()
	logger.Debug("source %s: epoch %d", s.name, s.epoch)
	return s, nil
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return s.name
}

// Root returns the watched directory.
func (s *Source) Root() string {
	return s.root
}

// Epoch returns the dataset generation.
func (s *Source) Epoch(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch, nil
}

// Revision returns the current revision.
func (s *Source) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Reset rescans the directory and starts a new epoch at revision 0.
func (s *Source) Reset() error {
	s.mu.Lock()
	next := time.Now().UnixNano()
	if next <= s.epoch {
		next = s.epoch + 1
	}
	s.epoch = next
	s.mu.Unlock()
	_, err := s.scan()
	return err
}

// epochOf maps a snapshot digest to a positive epoch.
func epochOf(digest uint64) int64 {
	return int64(digest>>2) | 1
}

// scan rebuilds the id and path maps and clears the change log. It returns
// a digest of the entity files it saw.
func (s *Source) scan() (uint64, error) {
	paths := make(map[string]string)
	ids := make(map[string]string)
	digest := xxhash.New()

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && isHidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isEntityFile(path) {
			return nil
		}
		if info, err := d.Info(); err == nil {
			rel, _ := filepath.Rel(s.root, path)
			_, _ = digest.WriteString(rel + "\x00" +
				strconv.FormatInt(info.Size(), 10) + "\x00" +
				strconv.FormatInt(info.ModTime().UnixNano(), 10) + "\n")
		}
		rep, err := readFile(path)
		if err != nil {
			logger.Warn("source %s: skipping %s: %v", s.name, path, err)
			return nil
		}
		if other, dup := paths[rep.ID]; dup {
			logger.Warn("source %s: %s repeats entity %s of %s", s.name, path, rep.ID, other)
			return nil
		}
		paths[rep.ID] = path
		ids[path] = rep.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning %s: %w", s.root, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = paths
	s.ids = ids
	s.revision = 0
	s.log = nil
	logger.Debug("source %s: %d entities", s.name, len(paths))
	return digest.Sum64(), nil
}

// ChangeSet returns the ids changed after fromRevision, up to the current
// revision.
func (s *Source) ChangeSet(_ context.Context, fromRevision int64) (*driven.ChangeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fromRevision > s.revision {
		return nil, fmt.Errorf("%w: revision %d is ahead of source %s at %d",
			domain.ErrInvalidInput, fromRevision, s.name, s.revision)
	}

	seen := make(map[string]bool)
	var changed []string
	// The log is ordered by revision.
	i := sort.Search(len(s.log), func(i int) bool { return s.log[i].revision > fromRevision })
	for _, c := range s.log[i:] {
		if !seen[c.id] {
			seen[c.id] = true
			changed = append(changed, c.id)
		}
	}
	return driven.NewChangeSet(s, s.epoch, fromRevision, s.revision, changed)
}

// Entities iterates over the entities present when it is called, in id
// order. Entities deleted during the iteration are skipped.
func (s *Source) Entities(_ context.Context) (driven.EntityDataIterator, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.paths))
	for id := range s.paths {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	return &iterator{source: s, ids: ids, pos: -1}, nil
}

// Entity reads the current file of an entity.
func (s *Source) Entity(ctx context.Context, id string) (*domain.Representation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	path, ok := s.paths[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	rep, err := readFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	if rep.ID != id {
		// The file now holds another entity; the pending event will catch up.
		return nil, domain.ErrNotFound
	}
	return rep, nil
}

// Refresh rereads one file and records the entities it changed. It
// returns the ids whose revision advanced.
func (s *Source) Refresh(path string) []string {
	var current string
	if rep, err := readFile(path); err == nil {
		current = rep.ID
	} else if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("source %s: unreadable %s: %v", s.name, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	previous := s.ids[path]
	if previous != "" && previous != current {
		delete(s.paths, previous)
		delete(s.ids, path)
		changed = append(changed, s.record(previous))
	}
	if current != "" {
		if other, dup := s.paths[current]; dup && other != path {
			logger.Warn("source %s: %s repeats entity %s of %s", s.name, path, current, other)
			return changed
		}
		s.paths[current] = path
		s.ids[path] = current
		changed = append(changed, s.record(current))
	}
	return changed
}

// record appends a change at the next revision (caller must hold lock).
func (s *Source) record(id string) string {
	s.revision++
	s.log = append(s.log, change{revision: s.revision, id: id})
	return id
}

// Watch follows the directory tree with fsnotify until ctx is done or
// Close is called. Events are applied through Refresh.
func (s *Source) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && isHidden(path) {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", s.root, err)
	}

	s.watchMu.Lock()
	if s.watcher != nil {
		s.watchMu.Unlock()
		watcher.Close()
		return fmt.Errorf("%w: source %s is already watched", domain.ErrInvalidInput, s.name)
	}
	s.watcher = watcher
	s.watchMu.Unlock()

	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Source) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) && !isHidden(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warn("source %s: watching %s: %v", s.name, event.Name, err)
					}
					continue
				}
			}
			if changed := s.handleFsEvent(event); len(changed) > 0 {
				logger.Debug("source %s: %v changed at revision %d", s.name, changed, s.Revision())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("source %s: watch error: %v", s.name, err)
		}
	}
}

// handleFsEvent applies one fsnotify event. Chmod-only events, hidden
// files and files without the entity extension are ignored.
func (s *Source) handleFsEvent(event fsnotify.Event) []string {
	if !isEntityFile(event.Name) {
		return nil
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return nil
	}
	return s.Refresh(event.Name)
}

// Close stops watching. It is safe to call more than once.
func (s *Source) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

func readFile(path string) (*domain.Representation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep domain.Representation
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, path, err)
	}
	if rep.ID == "" {
		return nil, fmt.Errorf("%w: %s has no id", domain.ErrInvalidInput, path)
	}
	return &rep, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func isEntityFile(path string) bool {
	return !isHidden(path) && strings.EqualFold(filepath.Ext(path), fileExt)
}

// iterator walks a snapshot of entity ids.
type iterator struct {
	source  *Source
	ids     []string
	pos     int
	current *domain.Representation
	err     error
	closed  bool
}

func (it *iterator) Next(ctx context.Context) bool {
	if it.closed || it.err != nil {
		return false
	}
	for {
		it.pos++
		if it.pos >= len(it.ids) {
			it.current = nil
			return false
		}
		rep, err := it.source.Entity(ctx, it.ids[it.pos])
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			it.err = err
			it.current = nil
			return false
		}
		it.current = rep
		return true
	}
}

func (it *iterator) Representation() *domain.Representation {
	return it.current
}

func (it *iterator) Err() error {
	return it.err
}

func (it *iterator) Close() error {
	it.closed = true
	it.current = nil
	return nil
}
