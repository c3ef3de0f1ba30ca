// Package history records finished analyses in an embedded BadgerDB so they
// can be looked up again after the response has been sent.
//
// Records are msgpack encoded. Two key spaces are kept:
//
//	rec/<id>               the record
//	time/<unix nanos>/<id> an index for newest-first listing
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/neurlang/fakevoice/analysis"
)

var ErrNotFound = errors.New("history: record not found")

// Record is the stored outcome of one analysis.
type Record struct {
	ID              string              `msgpack:"id" json:"id"`
	CreatedAt       time.Time           `msgpack:"created_at" json:"created_at"`
	FileName        string              `msgpack:"file_name" json:"file_name"`
	Format          string              `msgpack:"format" json:"format"`
	DurationSeconds float64             `msgpack:"duration_seconds" json:"duration_seconds"`
	FakePercentage  float64             `msgpack:"fake_percentage" json:"fake_percentage"`
	Probabilities   []float64           `msgpack:"probabilities" json:"probabilities"`
	Summary         string              `msgpack:"summary" json:"summary"`
	FrameTable      []analysis.FrameRow `msgpack:"frame_table" json:"frame_table"`
	Report          string              `msgpack:"report" json:"report"`
	Figures         map[string]string   `msgpack:"figures" json:"figures"`
}

// Options configures the store.
type Options struct {
	// Dir holds the BadgerDB files. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory, for tests.
	InMemory bool
}

// Store is a BadgerDB backed record store. It is safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("history: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(slogLogger{})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database is open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("history: database closed")
	}
	return nil
}

func recKey(id string) []byte { return []byte("rec/" + id) }

func timeKey(r *Record) []byte {
	return []byte(fmt.Sprintf("time/%020d/%s", r.CreatedAt.UnixNano(), r.ID))
}

// Put stores the record, replacing any record with the same ID.
func (s *Store) Put(_ context.Context, r *Record) error {
	if r.ID == "" {
		return errors.New("history: record ID is required")
	}
	val, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recKey(r.ID), val); err != nil {
			return err
		}
		return txn.Set(timeKey(r), []byte(r.ID))
	})
}

// Get returns the record with the given ID.
func (s *Store) Get(_ context.Context, id string) (*Record, error) {
	var r Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", id, err)
	}
	return &r, nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte("time/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte("time/\xff")); it.Valid() && len(ids) < limit; it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, string(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// slogLogger routes badger's logging to slog, dropping debug chatter.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...interface{}) {
	slog.Error("badger: " + fmt.Sprintf(f, v...))
}

func (slogLogger) Warningf(f string, v ...interface{}) {
	slog.Warn("badger: " + fmt.Sprintf(f, v...))
}

func (slogLogger) Infof(string, ...interface{})  {}
func (slogLogger) Debugf(string, ...interface{}) {}
