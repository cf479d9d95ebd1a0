package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"quickview/internal/fileutil"
	"quickview/internal/logging"
	"quickview/internal/services"
)

// ErrMiss reports that nothing is stored for the requested key and stage.
var ErrMiss = errors.New("cache miss")

const entryExt = ".json"

// Entry is one stored stage result.
type Entry struct {
	Key             string            `json:"key"`
	Stage           string            `json:"stage"`
	Payload         string            `json:"payload"`
	CreatedAt       time.Time         `json:"created_at"`
	ProducerVersion string            `json:"producer_version"`
	Meta            map[string]string `json:"meta,omitempty"`

	Path      string `json:"-"`
	SizeBytes int64  `json:"-"`
}

// Stats summarizes the on-disk cache.
type Stats struct {
	Entries int
	Bytes   int64
	ByStage map[string]int
}

// Store provides keyed, versioned access to stage results.
type Store struct {
	root   string
	logger *slog.Logger
	memory *gocache.Cache
}

// New creates a store rooted at dir. memoryTTL bounds how long entries stay in
// the in-process layer; zero or negative disables expiry.
func New(dir string, memoryTTL time.Duration, logger *slog.Logger) *Store {
	if memoryTTL <= 0 {
		memoryTTL = gocache.NoExpiration
	}
	return &Store{
		root:   dir,
		logger: logging.NewComponentLogger(logger, "cache"),
		memory: gocache.New(memoryTTL, 10*time.Minute),
	}
}

// Root returns the cache directory.
func (s *Store) Root() string { return s.root }

// Path returns the file that holds the entry for key and stage.
func (s *Store) Path(key, stage string) string {
	return filepath.Join(s.root, stage, key+entryExt)
}

// Validate reports whether entry may be served to a reader expecting version.
func Validate(entry Entry, version string) bool {
	return entry.Payload != "" && entry.ProducerVersion == version
}

// Load reads the stored entry without applying the validity policy. It returns
// ErrMiss when nothing is stored and an error wrapping services.ErrCache when
// the entry cannot be read or decoded.
func (s *Store) Load(key, stage string) (Entry, error) {
	if err := checkName("key", key); err != nil {
		return Entry{}, err
	}
	if err := checkName("stage", stage); err != nil {
		return Entry{}, err
	}
	if cached, ok := s.memory.Get(memoryKey(key, stage)); ok {
		return cached.(Entry), nil
	}

	path := s.Path(key, stage)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, ErrMiss
		}
		return Entry{}, services.Wrap(services.ErrCache, stage, "load", "read cache entry", err)
	}
	entry, err := decode(data)
	if err != nil {
		return Entry{}, services.Wrap(services.ErrCache, stage, "load", fmt.Sprintf("decode %s", path), err)
	}
	if entry.Key != key || entry.Stage != stage {
		return Entry{}, services.Wrap(services.ErrCache, stage, "load",
			fmt.Sprintf("entry at %s belongs to %s/%s", path, entry.Stage, entry.Key), nil)
	}
	entry.Path = path
	entry.SizeBytes = int64(len(data))
	s.memory.Set(memoryKey(key, stage), entry, gocache.DefaultExpiration)
	return entry, nil
}

// Get returns a valid entry for key and stage. Read failures, corrupt data, and
// version mismatches all come back as a miss.
func (s *Store) Get(ctx context.Context, key, stage, version string) (Entry, bool) {
	entry, err := s.Load(key, stage)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			logging.WarnWithContext(ctx, s.logger, "cache entry unreadable; treating as miss", "cache_read_failed",
				logging.String("key", key),
				logging.String("stage_name", stage),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, fmt.Sprintf("run 'quickview cache remove %s' if this repeats", key)),
				logging.String(logging.FieldImpact, "stage result will be recomputed"))
		}
		return Entry{}, false
	}
	if !Validate(entry, version) {
		s.logger.DebugContext(ctx, "cache entry rejected",
			logging.String("key", key),
			logging.String("stage_name", stage),
			logging.String("stored_version", entry.ProducerVersion),
			logging.String("wanted_version", version),
			logging.Bool("empty_payload", entry.Payload == ""))
		return Entry{}, false
	}
	return entry, true
}

// Put stores payload for key and stage. Empty payloads are refused. Errors
// wrap services.ErrCache and are advisory: callers keep their computed result.
func (s *Store) Put(key, stage, payload, version string, meta map[string]string) error {
	if err := checkName("key", key); err != nil {
		return err
	}
	if err := checkName("stage", stage); err != nil {
		return err
	}
	if payload == "" {
		return services.Wrap(services.ErrCache, stage, "put", "refusing to store empty payload", nil)
	}

	entry := Entry{
		Key:             key,
		Stage:           stage,
		Payload:         payload,
		CreatedAt:       time.Now().UTC(),
		ProducerVersion: version,
		Meta:            meta,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrCache, stage, "put", "marshal entry", err)
	}

	path := s.Path(key, stage)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrCache, stage, "put", "write entry", err)
	}
	entry.Path = path
	entry.SizeBytes = int64(len(data))
	s.memory.Set(memoryKey(key, stage), entry, gocache.DefaultExpiration)

	s.logger.Debug("cached stage result",
		logging.String("key", key),
		logging.String("stage_name", stage),
		logging.String("producer_version", version),
		logging.Int("payload_bytes", len(payload)))
	return nil
}

// List returns every decodable entry, newest first. Corrupt files are skipped.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.walk(func(path string, stage string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entry, err := decode(data)
		if err != nil {
			s.logger.Debug("skipping unreadable cache entry", logging.String("path", path), logging.Error(err))
			return nil
		}
		entry.Path = path
		entry.SizeBytes = int64(len(data))
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrCache, "cache", "list", "scan cache directory", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// Remove deletes every stage entry for key and returns how many were removed.
func (s *Store) Remove(key string) (int, error) {
	if err := checkName("key", key); err != nil {
		return 0, err
	}
	stages, err := s.stages()
	if err != nil {
		return 0, services.Wrap(services.ErrCache, "cache", "remove", "scan cache directory", err)
	}
	removed := 0
	for _, stage := range stages {
		s.memory.Delete(memoryKey(key, stage))
		err := os.Remove(s.Path(key, stage))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			return removed, services.Wrap(services.ErrCache, stage, "remove", "delete entry", err)
		}
	}
	s.logger.Debug("removed cache entries", logging.String("key", key), logging.Int("removed", removed))
	return removed, nil
}

// Clear deletes every entry and flushes the memory layer.
func (s *Store) Clear() (int, error) {
	s.memory.Flush()
	removed := 0
	err := s.walk(func(path string, _ string) error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, services.Wrap(services.ErrCache, "cache", "clear", "delete entries", err)
	}
	s.logger.Debug("cleared cache", logging.Int("removed", removed))
	return removed, nil
}

// Stats counts entries and bytes per stage.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{ByStage: make(map[string]int)}
	err := s.walk(func(path string, stage string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		stats.Entries++
		stats.Bytes += info.Size()
		stats.ByStage[stage]++
		return nil
	})
	if err != nil {
		return Stats{}, services.Wrap(services.ErrCache, "cache", "stats", "scan cache directory", err)
	}
	return stats, nil
}

func (s *Store) stages() ([]string, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	stages := make([]string, 0, len(dirEntries))
	for _, d := range dirEntries {
		if d.IsDir() {
			stages = append(stages, d.Name())
		}
	}
	return stages, nil
}

func (s *Store) walk(fn func(path, stage string) error) error {
	stages, err := s.stages()
	if err != nil {
		return err
	}
	for _, stage := range stages {
		files, err := os.ReadDir(filepath.Join(s.root, stage))
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != entryExt {
				continue
			}
			if err := fn(filepath.Join(s.root, stage, f.Name()), stage); err != nil {
				return err
			}
		}
	}
	return nil
}

func decode(data []byte) (Entry, error) {
	var entry Entry
	if len(data) == 0 {
		return entry, errors.New("empty file")
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, err
	}
	return entry, nil
}

func memoryKey(key, stage string) string {
	return stage + "/" + key
}

func checkName(kind, value string) error {
	if value == "" || value == "." || value == ".." || strings.ContainsAny(value, `/\`) {
		return services.Wrap(services.ErrValidation, "cache", "key", fmt.Sprintf("invalid %s %q", kind, value), nil)
	}
	return nil
}
