package cache

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BadgerBackend stores slots in an embedded badger database. Each record is
// one key under the slot's prefix.
type BadgerBackend struct {
	db *badgerdb.DB
}

// OpenBadgerBackend opens (or creates) a badger database in dir. An empty dir
// opens an in-memory database, which is what tests use.
func OpenBadgerBackend(dir string) (*BadgerBackend, error) {
	opts := badgerdb.DefaultOptions(dir).
		WithLogger(badgerLogger{logger: log.With().Str("component", "badger").Logger()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &BadgerBackend{db: db}, nil
}

// Load implements Backend.
func (b *BadgerBackend) Load(ctx context.Context, slot string) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := recordPrefix(slot)
	var entries []*Entry

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				entry, err := decodeEntry(val)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("load slot %q: %w", slot, err)
	}

	return entries, nil
}

// Save implements Backend.
func (b *BadgerBackend) Save(ctx context.Context, slot string, entries []*Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, entry := range entries {
		data, err := encodeEntry(entry)
		if err != nil {
			CacheErrors.WithLabelValues("save").Inc()
			return err
		}
		if err := wb.Set(recordKey(slot, entry.ID), data); err != nil {
			CacheErrors.WithLabelValues("save").Inc()
			return fmt.Errorf("stage record %q: %w", entry.ID, err)
		}
	}

	if err := wb.Flush(); err != nil {
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("save slot %q: %w", slot, err)
	}
	return nil
}

// Clear implements Backend.
func (b *BadgerBackend) Clear(ctx context.Context, slot string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.db.DropPrefix(recordPrefix(slot)); err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear slot %q: %w", slot, err)
	}
	return nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}
