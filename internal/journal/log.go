package journal

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/listsync/internal/storage/pebble"
)

// Entry is a decoded journal record.
type Entry struct {
	Seq     uint64
	Header  Header
	Payload []byte
}

// ReadOptions bounds a Read. AfterSeq is exclusive; zero reads from the start.
type ReadOptions struct {
	AfterSeq uint64
	Limit    int
}

// Log is the append-only log of one topic for one list.
type Log struct {
	db    *pebblestore.DB
	topic string
	list  string

	mu      sync.Mutex
	lastSeq uint64
}

func openLog(db *pebblestore.DB, topic, list string) (*Log, error) {
	l := &Log{db: db, topic: topic, list: list}
	meta, err := db.Get(KeyMeta(topic, list))
	switch {
	case err == nil && len(meta) >= 8:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, err
	}
	return l, nil
}

// Append writes one record and returns its sequence.
func (l *Log) Append(ctx context.Context, h Header, payload []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(ctx, h, payload, nil)
}

// appendLocked writes one record, plus whatever extra adds, in a single batch.
// l.mu must be held.
func (l *Log) appendLocked(ctx context.Context, h Header, payload []byte, extra func(b *pebble.Batch) error) (uint64, error) {
	val, err := encodeEntry(h, payload)
	if err != nil {
		return 0, err
	}

	b := l.db.NewBatch()
	defer b.Close()

	seq := l.lastSeq + 1
	if err := b.Set(KeyEntry(l.topic, l.list, seq), val, nil); err != nil {
		return 0, err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(KeyMeta(l.topic, l.list), meta[:], nil); err != nil {
		return 0, err
	}
	if extra != nil {
		if err := extra(b); err != nil {
			return 0, err
		}
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	l.lastSeq = seq
	return seq, nil
}

// Read returns up to Limit entries with sequence > AfterSeq in ascending order.
// Corrupt records are skipped.
func (l *Log) Read(opts ReadOptions) ([]Entry, error) {
	low := KeyEntry(l.topic, l.list, opts.AfterSeq+1)
	hi := KeyEntry(l.topic, l.list, ^uint64(0))
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	entries := []Entry{}
	for ok := iter.First(); ok && (opts.Limit == 0 || len(entries) < opts.Limit); ok = iter.Next() {
		key := iter.Key()
		seq := binary.BigEndian.Uint64(key[len(key)-8:])
		if e, ok := decodeEntry(seq, iter.Value()); ok {
			entries = append(entries, e)
		}
	}
	return entries, iter.Error()
}

// Commit advances the commit cursor to seq. Lower or equal values are ignored
// so the cursor never regresses.
func (l *Log) Commit(seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.cursorLocked(); ok && seq <= cur {
		return nil
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return l.db.Set(KeyCursor(l.topic, l.list), b[:])
}

// Cursor returns the committed sequence, if any.
func (l *Log) Cursor() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursorLocked()
}

func (l *Log) cursorLocked() (uint64, bool) {
	cur, err := l.db.Get(KeyCursor(l.topic, l.list))
	if err != nil || len(cur) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(cur[:8]), true
}
