package lanes

import (
	"context"
	"time"

	logpkg "github.com/rzbill/listsync/pkg/log"
)

// Sweep reclaims idle lanes, expires remembered command ids and trims
// committed journal entries. It returns the number of lanes reclaimed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var victims []*Lane
	for id, l := range r.lanes {
		if l.idle(now, r.opts.IdleTTL) {
			l.stop()
			delete(r.lanes, id)
			victims = append(victims, l)
		}
	}
	r.mu.Unlock()

	for _, l := range victims {
		<-l.done
	}
	if n := len(victims); n > 0 {
		r.stats.evicted.Add(int64(n))
		r.logger.Debug("reclaimed idle lanes", logpkg.Int("count", n))
	}

	cutoff := now.Add(-r.opts.DedupeTTL)
	if r.memo != nil {
		r.memo.expire(cutoff)
	}
	if r.journal != nil {
		ctx, cancel := context.WithTimeout(r.ctx, r.opts.CommandTimeout)
		defer cancel()
		if _, err := r.journal.ExpireIdempotency(ctx, cutoff, 1000); err != nil {
			r.logger.Warn("expire command ids failed", logpkg.Err(err))
		}
		for _, l := range victims {
			if _, err := r.journal.TrimCommitted(ctx, l.id, 1000); err != nil {
				r.logger.Warn("trim journal failed", logpkg.Str(logpkg.ListIDKey, l.id), logpkg.Err(err))
			}
		}
	}
	return len(victims)
}

// StartSweeper runs Sweep every interval until StopSweeper or Close.
func (r *Registry) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.mu.Lock()
	if r.sweepStop != nil || r.closed {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	r.sweepStop = stop
	r.sweepDone = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-r.ctx.Done():
				return
			case now := <-ticker.C:
				r.Sweep(now)
			}
		}
	}()
}

// StopSweeper stops the background sweeper and waits for it.
func (r *Registry) StopSweeper() {
	r.mu.Lock()
	stop, done := r.sweepStop, r.sweepDone
	r.sweepStop, r.sweepDone = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
