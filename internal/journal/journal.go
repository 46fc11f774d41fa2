package journal

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/listsync/internal/storage/pebble"
)

// Journal manages the per-list command logs, dead-letter logs and the
// command id index.
type Journal struct {
	db  *pebblestore.DB
	now func() time.Time

	mu    sync.Mutex
	logs  map[string]*Log
	known map[string]bool
	idem  sync.Mutex
}

// New returns a Journal backed by db.
func New(db *pebblestore.DB) *Journal {
	return &Journal{
		db:    db,
		now:   time.Now,
		logs:  make(map[string]*Log),
		known: make(map[string]bool),
	}
}

func (j *Journal) log(topic, list string) (*Log, error) {
	key := topic + "/" + list
	j.mu.Lock()
	defer j.mu.Unlock()
	if l, ok := j.logs[key]; ok {
		return l, nil
	}
	l, err := openLog(j.db, topic, list)
	if err != nil {
		return nil, err
	}
	j.logs[key] = l
	return l, nil
}

// Append journals a command for list and returns its sequence.
func (j *Journal) Append(ctx context.Context, list string, h Header, payload []byte) (uint64, error) {
	if err := j.index(list); err != nil {
		return 0, err
	}
	l, err := j.log(topicCommands, list)
	if err != nil {
		return 0, err
	}
	if h.AtMs == 0 {
		h.AtMs = j.now().UnixMilli()
	}
	return l.Append(ctx, h, payload)
}

// AppendOnce journals a command unless its command id was already seen. The
// entry and the id are written in one batch, so neither can exist without the
// other. When then is non-nil it runs with the new sequence while the list's
// log is still locked, which keeps hand-off order equal to sequence order. If
// then fails the entry and the id are removed again. fresh is false for a
// duplicate id.
func (j *Journal) AppendOnce(ctx context.Context, list string, h Header, payload []byte, then func(seq uint64) error) (seq uint64, fresh bool, err error) {
	if err := j.index(list); err != nil {
		return 0, false, err
	}
	l, err := j.log(topicCommands, list)
	if err != nil {
		return 0, false, err
	}
	if h.AtMs == 0 {
		h.AtMs = j.now().UnixMilli()
	}

	j.idem.Lock()
	defer j.idem.Unlock()
	idemKey := KeyIdem(h.CommandID)
	seen, err := j.db.Has(idemKey)
	if err != nil || seen {
		return 0, false, err
	}
	var at [8]byte
	binary.BigEndian.PutUint64(at[:], uint64(h.AtMs))

	l.mu.Lock()
	defer l.mu.Unlock()
	seq, err = l.appendLocked(ctx, h, payload, func(b *pebble.Batch) error {
		return b.Set(idemKey, at[:], nil)
	})
	if err != nil {
		return 0, false, err
	}
	if then == nil {
		return seq, true, nil
	}
	if err := then(seq); err != nil {
		b := j.db.NewBatch()
		defer b.Close()
		if derr := b.Delete(KeyEntry(topicCommands, list, seq), nil); derr != nil {
			return 0, false, errors.Join(err, derr)
		}
		if derr := b.Delete(idemKey, nil); derr != nil {
			return 0, false, errors.Join(err, derr)
		}
		if derr := j.db.CommitBatch(context.WithoutCancel(ctx), b); derr != nil {
			return 0, false, errors.Join(err, derr)
		}
		return 0, false, err
	}
	return seq, true, nil
}

func (j *Journal) index(list string) error {
	j.mu.Lock()
	seen := j.known[list]
	j.mu.Unlock()
	if seen {
		return nil
	}
	if err := j.db.Set(KeyList(list), nil); err != nil {
		return err
	}
	j.mu.Lock()
	j.known[list] = true
	j.mu.Unlock()
	return nil
}

// Commit marks every command of list up to and including seq as finished.
func (j *Journal) Commit(list string, seq uint64) error {
	l, err := j.log(topicCommands, list)
	if err != nil {
		return err
	}
	return l.Commit(seq)
}

// Pending returns the journaled commands of list that were never committed,
// in append order.
func (j *Journal) Pending(list string) ([]Entry, error) {
	l, err := j.log(topicCommands, list)
	if err != nil {
		return nil, err
	}
	cur, _ := l.Cursor()
	return l.Read(ReadOptions{AfterSeq: cur})
}

// DeadLetter records a command that could not be applied.
func (j *Journal) DeadLetter(ctx context.Context, list string, h Header, payload []byte) (uint64, error) {
	l, err := j.log(topicDeadLetter, list)
	if err != nil {
		return 0, err
	}
	if h.AtMs == 0 {
		h.AtMs = j.now().UnixMilli()
	}
	return l.Append(ctx, h, payload)
}

// DeadLetters returns up to limit dead-lettered commands of list.
func (j *Journal) DeadLetters(list string, limit int) ([]Entry, error) {
	l, err := j.log(topicDeadLetter, list)
	if err != nil {
		return nil, err
	}
	return l.Read(ReadOptions{Limit: limit})
}

// Lists returns every list that has a command log.
func (j *Journal) Lists() ([]string, error) {
	iter, err := j.db.NewPrefixIter(listsSeg)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for ok := iter.First(); ok; ok = iter.Next() {
		out = append(out, string(iter.Key()[len(listsSeg):]))
	}
	return out, iter.Error()
}

// Remember records commandID and reports whether it was new. A false result
// means the id was already seen.
func (j *Journal) Remember(commandID string) (bool, error) {
	j.idem.Lock()
	defer j.idem.Unlock()
	seen, err := j.db.Has(KeyIdem(commandID))
	if err != nil || seen {
		return false, err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(j.now().UnixMilli()))
	if err := j.db.Set(KeyIdem(commandID), b[:]); err != nil {
		return false, err
	}
	return true, nil
}

// Seen reports whether commandID was remembered.
func (j *Journal) Seen(commandID string) (bool, error) {
	return j.db.Has(KeyIdem(commandID))
}

// Forget drops commandID from the index so the id may be submitted again.
func (j *Journal) Forget(commandID string) error {
	err := j.db.Delete(KeyIdem(commandID))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil
	}
	return err
}
