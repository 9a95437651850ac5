// Package badger provides a BadgerDB backed core.SessionStore. Snapshots are
// stored as JSON under <prefix>session:<agent id>.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/statemesh/core"
)

// ErrOpenFailed is returned when the database cannot be opened.
var ErrOpenFailed = errors.New("badger: open failed")

// Config configures BadgerDB storage.
type Config struct {
	// Dir is the directory to store data in.
	Dir string

	// InMemory uses in-memory storage (useful for testing).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// KeyPrefix is added to all keys.
	KeyPrefix string

	// Logger is the logger to use (nil silences badger).
	Logger badger.Logger
}

// Option configures BadgerDB storage.
type Option func(*Config)

// WithDir sets the data directory.
func WithDir(dir string) Option {
	return func(c *Config) { c.Dir = dir }
}

// WithInMemory enables in-memory storage.
func WithInMemory() Option {
	return func(c *Config) { c.InMemory = true }
}

// WithSyncWrites enables synchronous writes.
func WithSyncWrites() Option {
	return func(c *Config) { c.SyncWrites = true }
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) { c.KeyPrefix = prefix }
}

// Store persists snapshots in BadgerDB.
type Store struct {
	db        *badger.DB
	keyPrefix string
	owned     bool
}

// Open opens a store.
func Open(opts ...Option) (*Store, error) {
	cfg := Config{KeyPrefix: "statemesh:"}
	for _, opt := range opts {
		opt(&cfg)
	}

	bopts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithSyncWrites(cfg.SyncWrites).WithLogger(cfg.Logger)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Join(ErrOpenFailed, err)
	}

	return &Store{db: db, keyPrefix: cfg.KeyPrefix, owned: true}, nil
}

// NewFromDB creates a store on an existing database. Close does not close db.
func NewFromDB(db *badger.DB, keyPrefix string) *Store {
	return &Store{db: db, keyPrefix: keyPrefix}
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) prefix() string { return s.keyPrefix + "session:" }

func (s *Store) key(agentID string) []byte { return []byte(s.prefix() + agentID) }

// Save writes snap, replacing any previous snapshot of the agent.
func (s *Store) Save(ctx context.Context, snap core.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.AgentID == "" {
		return fmt.Errorf("snapshot without agent id")
	}
	if snap.Updated.IsZero() {
		snap.Updated = time.Now().UTC()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(snap.AgentID), data)
	})
}

// Load reads the snapshot of agentID.
func (s *Store) Load(ctx context.Context, agentID string) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, err
	}

	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(agentID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrSessionNotFound, agentID)
	}
	if err != nil {
		return core.Snapshot{}, err
	}

	var snap core.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	return snap, nil
}

// Delete removes the snapshot of agentID.
func (s *Store) Delete(ctx context.Context, agentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(agentID))
	})
}

// List returns all stored agent ids in key order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(s.prefix())

	var ids []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), s.prefix()))
		}

		return nil
	})

	return ids, err
}
