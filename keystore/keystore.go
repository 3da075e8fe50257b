// Package keystore implements the local TACT key cache: a
// cache of (key_name hex, key_value hex) lines loaded from the
// cache_path/tact_keys file, installed into the content resolver's key
// service at scan start.
package keystore

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"

	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/resolver"
)

// Store is the local key cache, read from a tact_keys text file with
// "key_name key_value" per line.
type Store struct {
	path string

	mu   sync.RWMutex
	keys map[string]string
}

// Load reads path into a Store. A missing file is not an error: it is
// treated as an empty key set.
func Load(path string) (*Store, error) {
	s := &Store{path: path, keys: map[string]string{}}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errs.WrapFmt(err, "keystore: opening %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		s.keys[strings.ToUpper(fields[0])] = strings.ToLower(fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.WrapFmt(err, "keystore: reading %s", path)
	}
	return s, nil
}

// All returns a snapshot of every cached (name, value) pair.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.keys))
	for k, v := range s.keys {
		out[k] = v
	}
	return out
}

// Lookup returns the cached value for a key name, if present.
func (s *Store) Lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.keys[strings.ToUpper(name)]
	return v, ok
}

// InstallAll installs every cached key into res. Installation is
// idempotent at the resolver, so this is safe to call once per scan even
// though the key set is process-global thereafter.
func (s *Store) InstallAll(ctx context.Context, res resolver.Resolver) error {
	for name, value := range s.All() {
		if err := res.InstallKey(ctx, name, value); err != nil {
			return errs.WrapFmt(err, "keystore: installing key %s", name)
		}
	}
	return nil
}
