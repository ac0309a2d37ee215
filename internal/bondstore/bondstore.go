// Package bondstore remembers the hardware address each accessory handle last
// resolved to, so later connections can skip scanning.
package bondstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Bond is a remembered handle → address binding.
type Bond struct {
	ID        string    `yaml:"id" json:"id"`
	Address   string    `yaml:"address" json:"address"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

type file struct {
	Bonds []Bond `yaml:"bonds"`
}

// Store is a concurrent bond cache persisted as YAML. An empty path keeps it in memory.
type Store struct {
	path   string
	logger *logrus.Logger
	bonds  *hashmap.Map[string, Bond]

	saveMu sync.Mutex // serializes file writes
	now    func() time.Time
}

// Open loads the store at path. A missing file yields an empty store.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		path:   path,
		logger: logger,
		bonds:  hashmap.New[string, Bond](),
		now:    time.Now,
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.WithField("path", path).Debug("Bond store does not exist yet")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bond store %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse bond store %s: %w", path, err)
	}
	for _, b := range f.Bonds {
		if b.ID == "" || b.Address == "" {
			logger.WithField("bond", b).Warn("Skipping incomplete bond")
			continue
		}
		s.bonds.Set(b.ID, b)
	}

	logger.WithFields(logrus.Fields{
		"path":  path,
		"bonds": s.bonds.Len(),
	}).Debug("Bond store loaded")
	return s, nil
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string { return s.path }

// Lookup returns the address last bound to id.
func (s *Store) Lookup(id string) (string, bool) {
	b, ok := s.bonds.Get(id)
	if !ok {
		return "", false
	}
	return b.Address, true
}

// Remember binds id to address and persists the store when the binding changed.
func (s *Store) Remember(id, address string) error {
	id, address = strings.TrimSpace(id), strings.TrimSpace(address)
	if id == "" || address == "" {
		return fmt.Errorf("bond requires both id and address (id=%q, address=%q)", id, address)
	}
	if prev, ok := s.bonds.Get(id); ok && strings.EqualFold(prev.Address, address) {
		return nil
	}

	s.bonds.Set(id, Bond{ID: id, Address: address, UpdatedAt: s.now().UTC()})
	s.logger.WithFields(logrus.Fields{
		"id":      id,
		"address": address,
	}).Info("Bond remembered")
	return s.Save()
}

// Forget removes the binding for id. It reports whether one existed.
func (s *Store) Forget(id string) (bool, error) {
	if !s.bonds.Del(id) {
		return false, nil
	}
	return true, s.Save()
}

// List returns all bonds ordered by id.
func (s *Store) List() []Bond {
	out := make([]Bond, 0, s.bonds.Len())
	s.bonds.Range(func(_ string, b Bond) bool {
		out = append(out, b)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Save writes the store atomically. In-memory stores are not written.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := yaml.Marshal(file{Bonds: s.List()})
	if err != nil {
		return fmt.Errorf("failed to encode bond store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create bond store directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write bond store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace bond store: %w", err)
	}
	return nil
}
