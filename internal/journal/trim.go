package journal

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"
)

// TrimCommitted deletes committed command entries of list in batches of up
// to batchLimit keys. It returns the number of entries deleted.
func (j *Journal) TrimCommitted(ctx context.Context, list string, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	l, err := j.log(topicCommands, list)
	if err != nil {
		return 0, err
	}
	cur, ok := l.Cursor()
	if !ok {
		return 0, nil
	}

	low := KeyEntry(topicCommands, list, 0)
	hi := KeyEntry(topicCommands, list, cur+1)
	iter, err := j.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	deleted := 0
	for ok := iter.First(); ok; {
		b := j.db.NewBatch()
		n := 0
		for ok && n < batchLimit {
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			n++
			ok = iter.Next()
		}
		if err := j.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, err
		}
		b.Close()
		deleted += n
	}
	if err := iter.Error(); err != nil {
		return deleted, err
	}
	if deleted > 0 {
		if err := j.db.CompactRange(low, hi); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// ExpireIdempotency deletes command ids first seen before cutoff. Expired ids
// may be accepted again.
func (j *Journal) ExpireIdempotency(ctx context.Context, cutoff time.Time, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	iter, err := j.db.NewPrefixIter(idemSeg)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	cutoffMs := cutoff.UnixMilli()
	deleted := 0
	b := j.db.NewBatch()
	n := 0
	flush := func() error {
		if n == 0 {
			return nil
		}
		err := j.db.CommitBatch(ctx, b)
		b.Close()
		b = j.db.NewBatch()
		deleted += n
		n = 0
		return err
	}
	defer func() { b.Close() }()

	for ok := iter.First(); ok; ok = iter.Next() {
		v := iter.Value()
		if len(v) < 8 || int64(binary.BigEndian.Uint64(v[:8])) >= cutoffMs {
			continue
		}
		if err := b.Delete(iter.Key(), nil); err != nil {
			return deleted, err
		}
		n++
		if n >= batchLimit {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, iter.Error()
}
