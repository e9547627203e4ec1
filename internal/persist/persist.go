// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package persist is the key/value persistence boundary, backed by
// BadgerDB. Keys are case-insensitive; the typed helpers layer on the
// string surface via JSON. Safe for concurrent use.
package persist

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Store is one open key/value database.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (or creates) the database under dir. An empty dir opens an
// in-memory database, which tests use.
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("persist: open %q: %w", dir, err)
	}
	return &Store{db: db, log: logger.With().Str("component", "persist").Logger()}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeKey lowercases keys so lookups are case-insensitive.
func normalizeKey(key string) []byte {
	return []byte(strings.ToLower(key))
}

// GetString returns the value for key, reporting whether it exists.
func (s *Store) GetString(key string) (string, bool, error) {
	var value string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(normalizeKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("persist: get %q: %w", key, err)
	}
	return value, found, nil
}

// SetString stores value under key.
func (s *Store) SetString(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(normalizeKey(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("persist: set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(normalizeKey(key))
	})
	if err != nil {
		return fmt.Errorf("persist: remove %q: %w", key, err)
	}
	return nil
}

// GetBool reads a boolean, false when absent.
func (s *Store) GetBool(key string) (bool, bool, error) {
	raw, found, err := s.GetString(key)
	if err != nil || !found {
		return false, found, err
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, true, fmt.Errorf("persist: key %q is not a bool: %w", key, err)
	}
	return value, true, nil
}

// SetBool stores a boolean.
func (s *Store) SetBool(key string, value bool) error {
	return s.SetString(key, strconv.FormatBool(value))
}

// GetInt reads an integer, zero when absent.
func (s *Store) GetInt(key string) (int64, bool, error) {
	raw, found, err := s.GetString(key)
	if err != nil || !found {
		return 0, found, err
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("persist: key %q is not an int: %w", key, err)
	}
	return value, true, nil
}

// SetInt stores an integer.
func (s *Store) SetInt(key string, value int64) error {
	return s.SetString(key, strconv.FormatInt(value, 10))
}

// GetFloat reads a float, zero when absent.
func (s *Store) GetFloat(key string) (float64, bool, error) {
	raw, found, err := s.GetString(key)
	if err != nil || !found {
		return 0, found, err
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, true, fmt.Errorf("persist: key %q is not a float: %w", key, err)
	}
	return value, true, nil
}

// SetFloat stores a float.
func (s *Store) SetFloat(key string, value float64) error {
	return s.SetString(key, strconv.FormatFloat(value, 'g', -1, 64))
}

// GetObject decodes the JSON value under key into out, reporting whether
// the key exists.
func (s *Store) GetObject(key string, out any) (bool, error) {
	raw, found, err := s.GetString(key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("persist: decode %q: %w", key, err)
	}
	return true, nil
}

// SetObject stores v JSON-encoded under key.
func (s *Store) SetObject(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist: encode %q: %w", key, err)
	}
	return s.SetString(key, string(data))
}

// Keys lists every stored key with the given prefix, in lexical order.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = normalizeKey(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist: keys %q: %w", prefix, err)
	}
	return keys, nil
}
