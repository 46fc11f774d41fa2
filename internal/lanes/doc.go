// Package lanes serializes list mutations.
//
// A Registry owns one Lane per list. Submit validates a command, rejects a
// repeated command id, journals the command and appends it to its list's
// lane. Each lane runs one command at a time in arrival order; lanes of
// different lists run in parallel.
//
// Failures are terminal for the command only: they are logged, counted and
// dropped, and the lane moves on. Storage failures may be retried with
// backoff and end in the journal's dead-letter log when retries run out.
//
// Lanes are created on first use and reclaimed by a sweeper once they hold
// no references, have nothing queued or running, and have been idle for the
// configured TTL.
package lanes
