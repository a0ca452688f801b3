// Package kvstore keeps small JSON documents on local disk, one file per key.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/bluele/gcache"
)

const hotEntries = 64

type Store struct {
	dir string
	mu  sync.Mutex
	hot gcache.Cache
}

// Open creates dir if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("kvstore: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create store directory: %w", err)
	}
	return &Store{
		dir: dir,
		hot: gcache.New(hotEntries).LRU().Build(),
	}, nil
}

func (s *Store) Dir() string { return s.dir }

// path maps a key to a file name; keys may contain slashes (feed paths).
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Get decodes the document stored under key into v. ok is false when absent.
func (s *Store) Get(key string, v any) (bool, error) {
	data, ok, err := s.raw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) raw(key string) ([]byte, bool, error) {
	if cached, err := s.hot.Get(key); err == nil {
		return cached.([]byte), true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %q: %w", key, err)
	}
	_ = s.hot.Set(key, data)
	return data, true, nil
}

// Put overwrites the document under key.
func (s *Store) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	_ = s.hot.Set(key, data)
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hot.Remove(key)
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}
