package cachestore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"youwin-client/internal/entity"
	"youwin-client/internal/mapper"
	"youwin-client/internal/model"
	"youwin-client/internal/pkg/logger"
	"youwin-client/internal/repository/contract"
)

const (
	logModule = "CacheStore"

	currentReferenceKey = "current_url"
)

// Store maps a reference to its cached transcript and summary. Every mutation
// is written through to the KV backend; persistence failures are logged and
// never returned, so a broken backend degrades to an in-memory cache.
type Store struct {
	mu      sync.RWMutex
	kv      contract.KVRepository
	prefix  string
	tables  map[entity.Table]map[string]entity.CacheEntry
	current string
	mapper  *mapper.CacheMapper
	logger  logger.ILogger
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(kv contract.KVRepository, keyPrefix string, log logger.ILogger, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		prefix: keyPrefix,
		tables: make(map[entity.Table]map[string]entity.CacheEntry, len(entity.AllTables)),
		mapper: mapper.NewCacheMapper(),
		logger: log,
		now:    time.Now,
	}
	for _, t := range entity.AllTables {
		s.tables[t] = make(map[string]entity.CacheEntry)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

// Load replaces the in-memory state with what the backend holds. A table that
// cannot be read or decoded starts empty; the other table is unaffected.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range entity.AllTables {
		s.tables[t] = s.loadTable(ctx, t)
	}

	raw, found, err := s.kv.Get(ctx, s.key(currentReferenceKey))
	switch {
	case err != nil:
		s.logger.Warn(logModule, "Failed to read current reference", map[string]interface{}{"error": err.Error()})
		s.current = ""
	case found:
		s.current = string(raw)
	default:
		s.current = ""
	}
}

func (s *Store) loadTable(ctx context.Context, t entity.Table) map[string]entity.CacheEntry {
	empty := make(map[string]entity.CacheEntry)

	raw, found, err := s.kv.Get(ctx, s.key(string(t)))
	if err != nil {
		s.logger.Warn(logModule, "Failed to read cache table, starting empty", map[string]interface{}{
			"table": t,
			"error": err.Error(),
		})
		return empty
	}
	if !found {
		return empty
	}

	var table model.CachedTable
	if err := json.Unmarshal(raw, &table); err != nil {
		s.logger.Warn(logModule, "Discarding malformed cache table", map[string]interface{}{
			"table": t,
			"error": err.Error(),
		})
		return empty
	}
	return s.mapper.TableToEntity(table)
}

func (s *Store) Get(t entity.Table, reference string) (entity.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tables[t][reference]
	return e, ok
}

// Put stores content under reference, replacing any earlier entry. CreatedAt is
// truncated to milliseconds, the resolution of the persisted timestamp.
func (s *Store) Put(ctx context.Context, t entity.Table, reference, content string) entity.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[t]
	if !ok {
		s.logger.Error(logModule, "Put on unknown table", map[string]interface{}{"table": t})
		return entity.CacheEntry{}
	}

	entry := entity.CacheEntry{
		Content:   content,
		CreatedAt: time.UnixMilli(s.now().UnixMilli()),
	}
	table[reference] = entry
	s.persistTable(ctx, t)
	return entry
}

func (s *Store) persistTable(ctx context.Context, t entity.Table) {
	data, err := json.Marshal(s.mapper.TableToModel(s.tables[t]))
	if err != nil {
		s.logger.Error(logModule, "Failed to encode cache table", map[string]interface{}{"table": t, "error": err.Error()})
		return
	}
	if err := s.kv.Set(ctx, s.key(string(t)), data); err != nil {
		s.logger.Error(logModule, "Failed to persist cache table", map[string]interface{}{"table": t, "error": err.Error()})
	}
}

// Clear empties the given tables, or both when none are named.
func (s *Store) Clear(ctx context.Context, tables ...entity.Table) {
	if len(tables) == 0 {
		tables = entity.AllTables
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(tables))
	for _, t := range tables {
		if _, ok := s.tables[t]; !ok {
			continue
		}
		s.tables[t] = make(map[string]entity.CacheEntry)
		keys = append(keys, s.key(string(t)))
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		s.logger.Error(logModule, "Failed to clear persisted cache", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Store) CurrentReference() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrentReference remembers the last submitted reference across restarts.
// An empty reference is not stored.
func (s *Store) SetCurrentReference(ctx context.Context, reference string) {
	if reference == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = reference
	if err := s.kv.Set(ctx, s.key(currentReferenceKey), []byte(reference)); err != nil {
		s.logger.Error(logModule, "Failed to persist current reference", map[string]interface{}{"error": err.Error()})
	}
}

// References lists the references present in a table, sorted.
func (s *Store) References(t entity.Table) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]string, 0, len(s.tables[t]))
	for ref := range s.tables[t] {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, table := range s.tables {
		if len(table) > 0 {
			return false
		}
	}
	return true
}
