package series

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"
)

// DefaultStoreSize bounds the number of parsed files kept in memory.
// Interconnection price files are small but re-read for every
// generator; demand files are large but few.
const DefaultStoreSize = 128

// Store caches parsed series files by cleaned absolute path, so the
// same price file referenced by several interconnections is parsed
// once per run.
type Store struct {
	cache  *lru.Cache[string, *TimeSeries]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewStore creates a store holding up to size parsed files. A size
// of zero or below falls back to DefaultStoreSize.
func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultStoreSize
	}
	cache, err := lru.New[string, *TimeSeries](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create series cache: %v", err)
	}
	return &Store{cache: cache}, nil
}

// Get returns the parsed series for path, loading it on first use.
func (s *Store) Get(path string) (*TimeSeries, error) {
	key, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve series path %s: %v", path, err)
	}

	if ts, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return ts, nil
	}
	s.misses.Add(1)

	ts, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, ts)

	klog.V(3).InfoS("Parsed series file",
		"path", path,
		"rows", len(ts.Index),
		"columns", len(ts.Columns))
	return ts, nil
}

// Metrics returns the hit and miss counters.
func (s *Store) Metrics() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// Len returns the number of cached files.
func (s *Store) Len() int {
	return s.cache.Len()
}
