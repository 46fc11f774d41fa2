package pebblestore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func newTestDB(t *testing.T) (*DB, *Counters) {
	t.Helper()
	counters := &Counters{}
	db, err := Open(Options{
		DataDir:       t.TempDir(),
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       counters,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, counters
}

func TestCRUD(t *testing.T) {
	db, counters := newTestDB(t)

	if err := db.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("got %q want v1", got)
	}
	if counters.ReadBytes.Load() == 0 {
		t.Fatalf("expected read bytes to be counted")
	}
	if err := db.Delete([]byte("k1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	ok, err := db.Has([]byte("k1"))
	if err != nil || ok {
		t.Fatalf("Has = %v, %v", ok, err)
	}
}

func TestBatchCommitCounters(t *testing.T) {
	db, counters := newTestDB(t)

	b := db.NewBatch()
	_ = b.Set([]byte("a"), []byte("1"), nil)
	_ = b.Set([]byte("b"), []byte("2"), nil)
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	if counters.Commits.Load() != 1 {
		t.Fatalf("want 1 commit, got %d", counters.Commits.Load())
	}
	if counters.WriteBytes.Load() <= 0 {
		t.Fatalf("expected positive write bytes")
	}
}

func TestCommitHonorsCanceledContext(t *testing.T) {
	db, _ := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := db.NewBatch()
	defer b.Close()
	_ = b.Set([]byte("x"), []byte("y"), nil)
	if err := db.CommitBatch(ctx, b); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPrefixIter(t *testing.T) {
	db, _ := newTestDB(t)
	for _, k := range []string{"p/a", "p/b", "q/a", "p0"} {
		if err := db.Set([]byte(k), []byte("v")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	iter, err := db.NewPrefixIter([]byte("p/"))
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	defer iter.Close()
	var keys []string
	for ok := iter.First(); ok; ok = iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if len(keys) != 2 || keys[0] != "p/a" || keys[1] != "p/b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	if got := PrefixUpperBound([]byte("ab")); !bytes.Equal(got, []byte("ac")) {
		t.Fatalf("got %q", got)
	}
	if got := PrefixUpperBound([]byte{'a', 0xff}); !bytes.Equal(got, []byte("b")) {
		t.Fatalf("got %q", got)
	}
	if got := PrefixUpperBound([]byte{0xff}); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
}

func TestParseFsyncMode(t *testing.T) {
	for in, want := range map[string]FsyncMode{"": FsyncModeUnspecified, "always": FsyncModeAlways, "Interval": FsyncModeInterval, "never": FsyncModeNever} {
		got, err := ParseFsyncMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseFsyncMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}
