package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/types"
)

// Validate that BadgerStore implements the Store interface
var _ Store = &BadgerStore{}

// BadgerStore implements the Store interface using BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	path   string
	logger log.Logger
}

type versionRecord struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	Deployment types.Deployment `json:"deployment"`
}

// NewBadgerStore creates a new BadgerDB-backed store.
func NewBadgerStore(logger log.Logger) *BadgerStore {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &BadgerStore{logger: logger.WithComponent("store")}
}

// Open opens the BadgerDB database.
func (s *BadgerStore) Open(path string) error {
	s.path = path

	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogAdapter{logger: s.logger}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger db: %w", err)
	}
	s.db = db

	s.logger.Debug("Journal opened", log.Str("path", path))
	return nil
}

// Close closes the BadgerDB database.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, environment, service string) (*types.Deployment, error) {
	var d types.Deployment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(MakeKey(environment, service))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, environment, service)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &d)
		})
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Put implements Store. The latest record and its history entry are
// written in one transaction.
func (s *BadgerStore) Put(ctx context.Context, d *types.Deployment) error {
	if err := validateRecord(d.Environment, d.Service); err != nil {
		return err
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to serialize deployment: %w", err)
	}
	version := newVersion(d.UpdatedAt)
	vdata, err := json.Marshal(versionRecord{ID: version, Timestamp: d.UpdatedAt, Deployment: *d})
	if err != nil {
		return fmt.Errorf("failed to serialize deployment version: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(MakeKey(d.Environment, d.Service), data); err != nil {
			return err
		}
		return txn.Set(MakeVersionKey(d.Environment, d.Service, version), vdata)
	})
	if err != nil {
		return fmt.Errorf("failed to store deployment: %w", err)
	}

	s.logger.Debug("Journaled deployment",
		log.Environment(d.Environment),
		log.Service(d.Service),
		log.Str("state", string(d.State)))
	return nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context, environment string) ([]*types.Deployment, error) {
	var out []*types.Deployment
	prefix := MakePrefix(environment)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var d types.Deployment
				if err := json.Unmarshal(val, &d); err != nil {
					return fmt.Errorf("failed to deserialize deployment: %w", err)
				}
				out = append(out, &d)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// GetHistory implements Store.
func (s *BadgerStore) GetHistory(ctx context.Context, environment, service string) ([]HistoricalVersion, error) {
	var versions []HistoricalVersion
	prefix := MakeVersionPrefix(environment, service)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true // newest first
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var v versionRecord
				if err := json.Unmarshal(val, &v); err != nil {
					return fmt.Errorf("failed to deserialize version: %w", err)
				}
				versions = append(versions, HistoricalVersion{
					Version:    v.ID,
					Timestamp:  v.Timestamp,
					Deployment: v.Deployment,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return versions, err
}

// badgerLogAdapter adapts our logger to BadgerDB's logger interface.
type badgerLogAdapter struct {
	logger log.Logger
}

// Errorf implements badger.Logger.
func (l *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error("BadgerDB: " + fmt.Sprintf(format, args...))
}

// Warningf implements badger.Logger.
func (l *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn("BadgerDB: " + fmt.Sprintf(format, args...))
}

// Infof implements badger.Logger.
func (l *badgerLogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug("BadgerDB: " + fmt.Sprintf(format, args...))
}

// Debugf implements badger.Logger.
func (l *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug("BadgerDB: " + fmt.Sprintf(format, args...))
}
