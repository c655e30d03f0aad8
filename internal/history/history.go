// Package history persists QualityMetrics snapshots in BadgerDB so trend
// analysis survives between runs.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/panbanda/connascence/pkg/models"
)

var (
	snapshotPrefix = []byte("snapshot/")
	baselineKey    = []byte("baseline")
)

// ErrNoBaseline is returned when no baseline snapshot has been stored.
var ErrNoBaseline = errors.New("no baseline snapshot")

// Config holds configuration for a history store.
type Config struct {
	// Dir is the database directory. Ignored when InMemory is true.
	Dir string
	// InMemory keeps the database in RAM, for tests.
	InMemory bool
	// Capacity is the number of snapshots kept; older ones are deleted.
	Capacity int
	Logger   *slog.Logger
}

// Store is an append-only ring of snapshots keyed by zero-padded sequence.
type Store struct {
	db       *badger.DB
	capacity int
	logger   *slog.Logger
	next     uint64
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates the store described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("history directory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	s := &Store{db: db, capacity: max(cfg.Capacity, 1), logger: logger}
	if err := s.loadSequence(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func snapshotKey(seq uint64) []byte {
	return fmt.Appendf(bytes.Clone(snapshotPrefix), "%020d", seq)
}

func (s *Store) loadSequence() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		// Seeking in reverse needs a key just past the prefix range.
		seek := append(bytes.Clone(snapshotPrefix), 0xff)
		it.Seek(seek)
		if !it.ValidForPrefix(snapshotPrefix) {
			return nil
		}
		last, err := strconv.ParseUint(string(bytes.TrimPrefix(it.Item().Key(), snapshotPrefix)), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt history key %q: %w", it.Item().Key(), err)
		}
		s.next = last + 1
		return nil
	})
}

// Append stores m as the newest snapshot and trims the ring to capacity.
func (s *Store) Append(ctx context.Context, m models.QualityMetrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(s.next), data); err != nil {
			return err
		}
		keys, err := s.keys(txn)
		if err != nil {
			return err
		}
		for len(keys) > s.capacity-1 {
			if err := txn.Delete(keys[0]); err != nil {
				return err
			}
			keys = keys[1:]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	s.logger.Debug("stored metrics snapshot", "seq", s.next)
	s.next++
	return nil
}

// keys returns the stored snapshot keys oldest first, excluding the
// pending write at s.next.
func (s *Store) keys(txn *badger.Txn) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = snapshotPrefix
	it := txn.NewIterator(opts)
	defer it.Close()
	pending := snapshotKey(s.next)
	var out [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		k := it.Item().KeyCopy(nil)
		if bytes.Equal(k, pending) {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// Load returns the stored snapshots, oldest first.
func (s *Store) Load(ctx context.Context) ([]models.QualityMetrics, error) {
	var out []models.QualityMetrics
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = snapshotPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var m models.QualityMetrics
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return fmt.Errorf("decode snapshot %s: %w", it.Item().Key(), err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

// SetBaseline stores m as the baseline snapshot.
func (s *Store) SetBaseline(m models.QualityMetrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(baselineKey, data)
	})
}

// Baseline returns the stored baseline snapshot, or ErrNoBaseline.
func (s *Store) Baseline() (models.QualityMetrics, error) {
	var m models.QualityMetrics
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(baselineKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoBaseline
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	return m, err
}
