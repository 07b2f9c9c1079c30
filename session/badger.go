package session

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/oidcware/rp/errs"
)

const sessionKeyPrefix = "session:"

// BadgerStore is a durable Store backed by BadgerDB, for deployments that
// need sessions to survive a process restart instead of living only in
// memory.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a BadgerDB database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.SessionNotFound, "open badger session store", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreFromDB wraps an existing BadgerDB handle, for deployments
// that already hold one open. Session entries are keyed under the
// "session:" prefix.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) Set(_ context.Context, data *Data, ttl time.Duration) (string, error) {
	sid := uuid.New().String()
	payload, err := json.Marshal(data)
	if err != nil {
		return "", errs.Wrap(errs.SessionNotFound, "marshal session data", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionKeyPrefix+sid), payload)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return "", errs.Wrap(errs.SessionNotFound, "store session", err)
	}
	return sid, nil
}

func (s *BadgerStore) Get(_ context.Context, sid string) (*Data, error) {
	var data Data
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + sid))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.New(errs.SessionNotFound, "session not found")
		}
		if err != nil {
			return errs.Wrap(errs.SessionNotFound, "get session", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &data)
		})
	})
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *BadgerStore) Destroy(_ context.Context, sid string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(sessionKeyPrefix + sid))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) Touch(ctx context.Context, sid string, data *Data, ttl time.Duration) error {
	if data == nil {
		existing, err := s.Get(ctx, sid)
		if err != nil {
			return err
		}
		data = existing
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return errs.Wrap(errs.SessionNotFound, "marshal session data", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionKeyPrefix+sid), payload)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

var _ Store = (*BadgerStore)(nil)
