package lanes

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/listsync/internal/command"
	"github.com/rzbill/listsync/internal/journal"
	"github.com/rzbill/listsync/internal/store"
	logpkg "github.com/rzbill/listsync/pkg/log"
)

// Emitter receives the result of every successful command.
type Emitter interface {
	Emit(ctx context.Context, res *command.Result) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, res *command.Result) error

func (f EmitterFunc) Emit(ctx context.Context, res *command.Result) error { return f(ctx, res) }

// Options tunes a Registry. Zero values select the defaults.
type Options struct {
	// CommandTimeout bounds one execution attempt. Default 10s.
	CommandTimeout time.Duration
	// MaxRetries is the number of extra attempts for storage errors. Default 0.
	MaxRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt up to 30x. Default 100ms.
	RetryBackoff time.Duration
	// IdleTTL is how long an unreferenced empty lane survives. Default 5m.
	IdleTTL time.Duration
	// DedupeTTL bounds how long command ids are remembered. Default 24h.
	DedupeTTL time.Duration
	// Journal makes accepted commands durable. Optional.
	Journal *journal.Journal
}

func (o Options) withDefaults() Options {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 10 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 100 * time.Millisecond
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = 5 * time.Minute
	}
	if o.DedupeTTL <= 0 {
		o.DedupeTTL = 24 * time.Hour
	}
	return o
}

// Registry maps list ids to lanes.
type Registry struct {
	exec    *Executor
	emitter Emitter
	opts    Options
	journal *journal.Journal
	dedupe  Deduper
	memo    *memoryDeduper
	logger  logpkg.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	lanes  map[string]*Lane
	closed bool

	sweepStop chan struct{}
	sweepDone chan struct{}

	stats counters
}

// New creates a Registry with the default logger.
func New(st store.Store, emitter Emitter, opts Options) *Registry {
	return NewWithLogger(st, emitter, opts, logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel)))
}

// NewWithLogger creates a Registry that logs through logger.
func NewWithLogger(st store.Store, emitter Emitter, opts Options, logger logpkg.Logger) *Registry {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		exec:    NewExecutor(st),
		emitter: emitter,
		opts:    opts,
		journal: opts.Journal,
		logger:  logger.With(logpkg.Component("lanes")),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		lanes:   make(map[string]*Lane),
	}
	if opts.Journal != nil {
		r.dedupe = opts.Journal
	} else {
		r.memo = newMemoryDeduper()
		r.dedupe = r.memo
	}
	return r
}

// Submit validates cmd, rejects repeated command ids, journals it and queues
// it on its list's lane. It returns once the command is queued.
func (r *Registry) Submit(ctx context.Context, cmd command.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if r.isClosed() {
		return ErrClosed
	}
	m := cmd.Metadata()
	if r.journal != nil && cmd.Kind() != command.KindFetchAll {
		return r.submitJournaled(ctx, cmd)
	}
	fresh, err := r.dedupe.Remember(m.CommandID)
	if err != nil {
		return fmt.Errorf("%w: remember command id: %w", ErrStorage, err)
	}
	if !fresh {
		r.stats.duplicates.Add(1)
		return fmt.Errorf("%w: %s", ErrDuplicate, m.CommandID)
	}
	if err := r.enqueue(m.ListID, job{cmd: cmd}); err != nil {
		_ = r.dedupe.Forget(m.CommandID)
		return err
	}
	r.stats.submitted.Add(1)
	return nil
}

// submitJournaled records the command id and the journal entry in one write
// and queues the command while the list's log is locked, so lane order always
// matches journal order.
func (r *Registry) submitJournaled(ctx context.Context, cmd command.Command) error {
	m := cmd.Metadata()
	payload, err := command.Encode(cmd)
	if err != nil {
		return err
	}
	h := journal.Header{CommandID: m.CommandID, Kind: string(cmd.Kind())}
	_, fresh, err := r.journal.AppendOnce(ctx, m.ListID, h, payload, func(seq uint64) error {
		return r.enqueue(m.ListID, job{cmd: cmd, seq: seq})
	})
	switch {
	case errors.Is(err, ErrClosed):
		return err
	case err != nil:
		return fmt.Errorf("%w: journal append: %w", ErrStorage, err)
	case !fresh:
		r.stats.duplicates.Add(1)
		return fmt.Errorf("%w: %s", ErrDuplicate, m.CommandID)
	}
	r.stats.submitted.Add(1)
	return nil
}

func (r *Registry) enqueue(listID string, j job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.laneLocked(listID).push(j)
	return nil
}

// laneLocked returns the lane for listID, starting it if absent. r.mu must be held.
func (r *Registry) laneLocked(listID string) *Lane {
	if l, ok := r.lanes[listID]; ok {
		return l
	}
	l := newLane(listID, r.now())
	r.lanes[listID] = l
	r.stats.created.Add(1)
	r.wg.Add(1)
	go r.work(l)
	return l
}

// Acquire pins the list's lane so the sweeper keeps it, for example while a
// room for the list has members. It returns ErrClosed after Close.
func (r *Registry) Acquire(listID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	l := r.laneLocked(listID)
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
	return nil
}

// Release undoes one Acquire.
func (r *Registry) Release(listID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lanes[listID]
	if !ok {
		return
	}
	l.mu.Lock()
	if l.refs > 0 {
		l.refs--
	}
	l.lastActive = r.now()
	l.mu.Unlock()
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Registry) work(l *Lane) {
	defer r.wg.Done()
	defer close(l.done)
	for {
		if l.stopped() {
			return
		}
		j, ok := l.next()
		if !ok {
			<-l.wake
			continue
		}
		r.run(j)
		l.finish(r.now())
	}
}

// run executes one job to its single outcome.
func (r *Registry) run(j job) {
	m := j.cmd.Metadata()
	logger := r.logger.With(
		logpkg.Str(logpkg.ListIDKey, m.ListID),
		logpkg.Str(logpkg.CommandIDKey, m.CommandID),
		logpkg.Str("kind", string(j.cmd.Kind())),
	)
	start := r.now()

	var (
		res      *command.Result
		err      error
		attempts int
	)
	for {
		attempts++
		ctx, cancel := context.WithTimeout(r.ctx, r.opts.CommandTimeout)
		res, err = j.cmd.Apply(ctx, r.exec)
		if err != nil && ctx.Err() == context.DeadlineExceeded && r.ctx.Err() == nil {
			err = fmt.Errorf("%w: deadline exceeded after %s: %w", ErrStorage, r.opts.CommandTimeout, err)
		}
		cancel()
		if err == nil || !errors.Is(err, ErrStorage) || attempts > r.opts.MaxRetries {
			break
		}
		delay := r.backoff(attempts)
		logger.Warn("command failed, retrying", logpkg.Int("attempt", attempts), logpkg.Dur("backoff_ms", delay), logpkg.Err(err))
		select {
		case <-time.After(delay):
		case <-r.ctx.Done():
		}
		if r.ctx.Err() != nil {
			break
		}
	}

	switch {
	case err != nil:
		r.stats.dropped.Add(1)
		r.drop(logger, j, err, attempts)
		if errors.Is(err, context.Canceled) && r.ctx.Err() != nil {
			// Shutdown interrupted the command; leave it uncommitted for recovery.
			return
		}
	case res == nil:
		r.stats.processed.Add(1)
		logger.Debug("command produced no change", logpkg.Dur("elapsed_ms", r.now().Sub(start)))
	default:
		r.stats.processed.Add(1)
		ctx, cancel := context.WithTimeout(r.ctx, r.opts.CommandTimeout)
		if eerr := r.emitter.Emit(ctx, res); eerr != nil {
			r.stats.emitFailures.Add(1)
			logger.Error("emit result failed", logpkg.Err(eerr))
		}
		cancel()
		logger.Debug("command applied", logpkg.Dur("elapsed_ms", r.now().Sub(start)))
	}

	if j.seq != 0 && r.journal != nil {
		if cerr := r.journal.Commit(m.ListID, j.seq); cerr != nil {
			logger.Error("journal commit failed", logpkg.Err(cerr))
		}
	}
}

// drop logs a failed command and dead-letters storage failures.
func (r *Registry) drop(logger logpkg.Logger, j job, err error, attempts int) {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		logger.Warn("invalid status transition dropped", logpkg.Err(err))
	case errors.Is(err, store.ErrNotFound):
		logger.Warn("command target not found, dropped", logpkg.Err(err))
	case errors.Is(err, ErrStorage):
		logger.Error("command dropped after storage failure", logpkg.Int("attempts", attempts), logpkg.Err(err))
		r.deadLetter(logger, j, err, attempts)
	default:
		logger.Error("command dropped", logpkg.Err(err))
	}
}

func (r *Registry) deadLetter(logger logpkg.Logger, j job, cause error, attempts int) {
	if r.journal == nil {
		return
	}
	payload, err := command.Encode(j.cmd)
	if err != nil {
		logger.Error("encode dead letter failed", logpkg.Err(err))
		return
	}
	m := j.cmd.Metadata()
	h := journal.Header{CommandID: m.CommandID, Kind: string(j.cmd.Kind()), Reason: cause.Error(), Attempts: attempts}
	if _, err := r.journal.DeadLetter(context.Background(), m.ListID, h, payload); err != nil {
		logger.Error("dead letter append failed", logpkg.Err(err))
		return
	}
	r.stats.deadLettered.Add(1)
}

// backoff returns the exponential delay before retry number attempt, with
// up to 10% jitter.
func (r *Registry) backoff(attempt int) time.Duration {
	d := r.opts.RetryBackoff << (attempt - 1)
	if limit := 30 * r.opts.RetryBackoff; d > limit || d <= 0 {
		d = limit
	}
	return d + time.Duration(rand.Int63n(int64(d/10)+1))
}

// Recover re-queues journaled commands that were never committed, per list in
// their original order. Call it before accepting new commands.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	if r.journal == nil {
		return 0, nil
	}
	lists, err := r.journal.Lists()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, listID := range lists {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		pending, err := r.journal.Pending(listID)
		if err != nil {
			return total, fmt.Errorf("pending for %s: %w", listID, err)
		}
		for _, e := range pending {
			cmd, err := command.Decode(e.Payload)
			if err != nil {
				r.logger.Error("skipping undecodable journal entry",
					logpkg.Str(logpkg.ListIDKey, listID), logpkg.Int64("seq", int64(e.Seq)), logpkg.Err(err))
				_ = r.journal.Commit(listID, e.Seq)
				continue
			}
			if err := r.enqueue(listID, job{cmd: cmd, seq: e.Seq}); err != nil {
				return total, err
			}
			total++
		}
	}
	if total > 0 {
		r.logger.Info("recovered journaled commands", logpkg.Int("count", total))
	}
	r.stats.recovered.Add(int64(total))
	return total, nil
}

// Drain waits until every lane is empty and idle or ctx is done.
func (r *Registry) Drain(ctx context.Context) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for {
		if r.pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Registry) pending() int {
	r.mu.Lock()
	lanes := make([]*Lane, 0, len(r.lanes))
	for _, l := range r.lanes {
		lanes = append(lanes, l)
	}
	r.mu.Unlock()
	n := 0
	for _, l := range lanes {
		n += l.depth()
	}
	return n
}

// ListIDs returns the ids of live lanes in sorted order.
func (r *Registry) ListIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.lanes))
	for id := range r.lanes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close stops accepting commands, lets each lane finish its current command
// and waits for the workers to exit. Queued commands stay in the journal.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	lanes := make([]*Lane, 0, len(r.lanes))
	for _, l := range r.lanes {
		lanes = append(lanes, l)
	}
	r.mu.Unlock()

	r.StopSweeper()
	for _, l := range lanes {
		l.stop()
	}
	r.wg.Wait()
	r.cancel()
	return nil
}

type counters struct {
	submitted    atomic.Int64
	processed    atomic.Int64
	dropped      atomic.Int64
	duplicates   atomic.Int64
	deadLettered atomic.Int64
	emitFailures atomic.Int64
	recovered    atomic.Int64
	created      atomic.Int64
	evicted      atomic.Int64
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Lanes        int   `json:"lanes"`
	Queued       int   `json:"queued"`
	Submitted    int64 `json:"submitted"`
	Processed    int64 `json:"processed"`
	Dropped      int64 `json:"dropped"`
	Duplicates   int64 `json:"duplicates"`
	DeadLettered int64 `json:"deadLettered"`
	EmitFailures int64 `json:"emitFailures"`
	Recovered    int64 `json:"recovered"`
	Created      int64 `json:"lanesCreated"`
	Evicted      int64 `json:"lanesEvicted"`
}

// Stats returns current counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	n := len(r.lanes)
	r.mu.Unlock()
	return Stats{
		Lanes:        n,
		Queued:       r.pending(),
		Submitted:    r.stats.submitted.Load(),
		Processed:    r.stats.processed.Load(),
		Dropped:      r.stats.dropped.Load(),
		Duplicates:   r.stats.duplicates.Load(),
		DeadLettered: r.stats.deadLettered.Load(),
		EmitFailures: r.stats.emitFailures.Load(),
		Recovered:    r.stats.recovered.Load(),
		Created:      r.stats.created.Load(),
		Evicted:      r.stats.evicted.Load(),
	}
}
