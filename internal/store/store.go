// Package store implements the shared JSON file store: a generic namespaced
// KV document plus the claim store. The same files are read and written by
// the external orchestrator, so the on-disk shape is a contract — plain JSON,
// advisory-locked read-modify-write, atomic rename on every update.
package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
)

// Store provides concurrent-safe access to the shared documents under one
// base directory. The zero value is not usable; call New.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. Documents are created lazily on first
// write and never destroyed.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's base directory.
func (s *Store) Dir() string { return s.dir }

// MemoryPath returns the KV document path.
func (s *Store) MemoryPath() string {
	return filepath.Join(s.dir, "memory", "store.json")
}

// ClaimsPath returns the claim document path.
func (s *Store) ClaimsPath() string {
	return filepath.Join(s.dir, "claims", "claims.json")
}

// memoryDoc is the on-disk shape of memory/store.json.
type memoryDoc struct {
	Entries map[string]models.Entry `json:"entries"`
}

func (d *memoryDoc) init() {
	if d.Entries == nil {
		d.Entries = map[string]models.Entry{}
	}
}

// updateMemory runs fn over the KV document under the advisory lock and
// persists the result atomically.
func (s *Store) updateMemory(fn func(doc *memoryDoc) error) error {
	path := s.MemoryPath()
	lock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer unlockFile(lock)

	var doc memoryDoc
	if err := readDocument(path, &doc); err != nil {
		return err
	}
	doc.init()
	if err := fn(&doc); err != nil {
		return err
	}
	return writeDocument(path, &doc)
}

// Put stores value under key, replacing any previous entry. The value is
// marshaled as-is; callers own the schema of what they store.
func (s *Store) Put(key string, value any) error {
	if key == "" {
		return fmt.Errorf("store put: empty key")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	return s.updateMemory(func(doc *memoryDoc) error {
		prev, existed := doc.Entries[key]
		entry := models.Entry{
			Key:      key,
			Value:    raw,
			StoredAt: time.Now().UTC(),
		}
		if existed {
			entry.AccessCount = prev.AccessCount
		}
		doc.Entries[key] = entry
		return nil
	})
}

// Retrieve returns the raw value for key and increments its access count.
// The second return is false when the key does not exist. The access-count
// bump is a write, so retrieval goes through the locked path.
func (s *Store) Retrieve(key string) (json.RawMessage, bool, error) {
	var raw json.RawMessage
	found := false
	err := s.updateMemory(func(doc *memoryDoc) error {
		entry, ok := doc.Entries[key]
		if !ok {
			return nil
		}
		found = true
		entry.AccessCount++
		doc.Entries[key] = entry
		raw = entry.Value
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return raw, found, nil
}

// Get retrieves key and unmarshals it into v. Returns false when absent.
func (s *Store) Get(key string, v any) (bool, error) {
	raw, found, err := s.Retrieve(key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Peek reads key without bumping the access count. Lock-free; the snapshot
// may be stale but is internally consistent.
func (s *Store) Peek(key string, v any) (bool, error) {
	var doc memoryDoc
	if err := readDocument(s.MemoryPath(), &doc); err != nil {
		return false, err
	}
	entry, ok := doc.Entries[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.Value, v); err != nil {
		return true, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// List returns all entries whose key starts with prefix, sorted by key.
// Lock-free read; callers may observe a stale but consistent snapshot.
func (s *Store) List(prefix string) ([]models.Entry, error) {
	var doc memoryDoc
	if err := readDocument(s.MemoryPath(), &doc); err != nil {
		return nil, err
	}
	var out []models.Entry
	for key, entry := range doc.Entries {
		if strings.HasPrefix(key, prefix) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	return s.updateMemory(func(doc *memoryDoc) error {
		delete(doc.Entries, key)
		return nil
	})
}
