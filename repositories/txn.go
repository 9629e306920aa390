package repositories

import (
	"chat-delivery/errors"
	"encoding/json"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const maxConflictRetries = 5

// writeChunkSize bounds how many records one bulk transaction rewrites,
// Badger rejects a transaction past its batch size with ErrTxnTooBig.
var writeChunkSize = 500

// update runs fn in a read-write transaction and replays it when Badger
// detects a conflict with a concurrent transaction, which is what makes
// read-then-write sequences such as create-or-get safe.
func update(db *badger.DB, log *slog.Logger, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return errors.Storage(err)
		}
		log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
	return errors.Storage(err)
}

// updateEach runs apply on every key, writeChunkSize keys per transaction,
// and counts the keys apply reports as changed. Chunks commit one after the
// other: a failing chunk leaves the previous ones applied.
func updateEach(db *badger.DB, log *slog.Logger, keys [][]byte,
	apply func(txn *badger.Txn, key []byte) (bool, error)) (int, error) {
	total := 0
	for _, chunk := range lo.Chunk(keys, writeChunkSize) {
		var changed int
		err := update(db, log, func(txn *badger.Txn) error {
			changed = 0
			for _, key := range chunk {
				ok, err := apply(txn, key)
				if err != nil {
					return err
				}
				if ok {
					changed++
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += changed
	}
	return total, nil
}

func view(db *badger.DB, fn func(txn *badger.Txn) error) error {
	return errors.Storage(db.View(fn))
}

func getJSON(txn *badger.Txn, key []byte, out any, notFound error) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, in any) error {
	bytes, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return txn.Set(key, bytes)
}

// getPointer resolves a secondary index entry into the primary key it references.
func getPointer(txn *badger.Txn, key []byte, notFound error) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// keysWithPrefix lists keys only, values are not fetched.
func keysWithPrefix(txn *badger.Txn, prefix []byte) [][]byte {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}
