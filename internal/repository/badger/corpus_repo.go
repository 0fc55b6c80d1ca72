package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/repository"
)

const (
	recordPrefix = "corpus:rec:"
	idPrefix     = "corpus:id:"
	countKey     = "corpus:count"

	maxConflictRetries = 32
)

// Ensure CorpusRepository implements repository.CorpusRepository
var _ repository.CorpusRepository = (*CorpusRepository)(nil)

// CorpusRepository stores the corpus in BadgerDB. Records live under
// corpus:rec:<seq> with a big-endian sequence so key order is insertion
// order; corpus:id:<ticket id> is the dedup index. Each Append is a single
// serializable transaction.
type CorpusRepository struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenCorpusRepository opens a BadgerDB corpus at dir, creating the directory
// if needed. With inMemory set, dir is ignored and nothing touches disk.
func OpenCorpusRepository(dir string, inMemory bool) (*CorpusRepository, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create badger directory: %w", err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
		opts = badger.DefaultOptions(dir)
	}

	logger := slog.Default().With("component", "badger-corpus")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &CorpusRepository{db: db, logger: logger}, nil
}

// Close closes the BadgerDB database
func (r *CorpusRepository) Close() error {
	return r.db.Close()
}

// Load returns every record in insertion order
func (r *CorpusRepository) Load(ctx context.Context) ([]models.TicketRecord, error) {
	records := []models.TicketRecord{}
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.TicketRecord
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode record %q: %w", iter.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Contains reports whether the ticket is already in the corpus
func (r *CorpusRepository) Contains(ctx context.Context, ticketID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(idKey(ticketID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Count returns the number of records
func (r *CorpusRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count uint64
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = readCount(txn)
		return err
	})
	return int(count), err
}

// Append adds the record unless its ticket ID is already indexed. Concurrent
// appends that conflict are retried.
func (r *CorpusRepository) Append(ctx context.Context, record models.TicketRecord) (bool, error) {
	if record.ID == "" {
		return false, fmt.Errorf("append corpus record: empty ticket id")
	}
	value, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("encode record: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		added := false
		err := r.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(idKey(record.ID))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			count, err := readCount(txn)
			if err != nil {
				return err
			}
			seq := count + 1

			if err := txn.Set(recordKey(seq), value); err != nil {
				return err
			}
			if err := txn.Set(idKey(record.ID), encodeUint64(seq)); err != nil {
				return err
			}
			if err := txn.Set([]byte(countKey), encodeUint64(seq)); err != nil {
				return err
			}
			added = true
			return nil
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			r.logger.Debug("corpus append conflict, retrying", "ticket_id", record.ID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return false, fmt.Errorf("append record %s: %w", record.ID, err)
		}
		return added, nil
	}
}

func readCount(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(countKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt corpus counter: %d bytes", len(val))
		}
		count = binary.BigEndian.Uint64(val)
		return nil
	})
	return count, err
}

func recordKey(seq uint64) []byte {
	return append([]byte(recordPrefix), encodeUint64(seq)...)
}

func idKey(ticketID string) []byte {
	return []byte(idPrefix + ticketID)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
