// Package journal persists one record per completed invocation in a pebble
// database, so developers can inspect recent traffic via the diagnostics
// listener. The journal is optional; when disabled nothing is recorded.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"funcgate/pkg/logger"
)

var db *pebble.DB

// seq reduces key collisions when records share a nanosecond timestamp.
var seq uint64

const keyPrefix = "inv:"

// Record is one completed invocation.
type Record struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Function   string `json:"function,omitempty"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	TS         int64  `json:"ts"`
}

// Open opens (or creates) the journal database at path and keeps a global
// handle for simple usage in this package.
func Open(path string) error {
	var err error
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("journal_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("journal_opened", "path", path)
	return nil
}

// Close closes the journal database if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	return nil
}

// Ready reports whether the journal is opened.
func Ready() bool {
	return db != nil
}

// Append stores one record under a sortable timestamp key.
func Append(rec Record) error {
	if db == nil {
		return fmt.Errorf("journal not opened; call journal.Open first")
	}
	if rec.TS == 0 {
		rec.TS = time.Now().UTC().UnixNano()
	}
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("%s%020d-%06d", keyPrefix, rec.TS, s)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return db.Set([]byte(key), data, pebble.Sync)
}

// Recent returns up to limit records, newest first.
func Recent(limit int) ([]Record, error) {
	if db == nil {
		return nil, fmt.Errorf("journal not opened; call journal.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := []Record{}
	for ok := iter.Last(); ok && (limit <= 0 || len(out) < limit); ok = iter.Prev() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// PruneBefore deletes every record older than cutoff and returns the number
// of deleted records.
func PruneBefore(cutoff time.Time) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("journal not opened; call journal.Open first")
	}
	bound := fmt.Sprintf("%s%020d", keyPrefix, cutoff.UTC().UnixNano())
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(bound),
	})
	if err != nil {
		return 0, err
	}
	keys := [][]byte{}
	for ok := iter.First(); ok; ok = iter.Next() {
		if !strings.HasPrefix(string(iter.Key()), keyPrefix) {
			break
		}
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := db.Delete(k, pebble.Sync); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
