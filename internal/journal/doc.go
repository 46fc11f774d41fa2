// Package journal is the durable command journal behind the mutation lanes.
//
// Every list has its own append-only log in Pebble. A command is appended
// before it is queued and its sequence is committed once the lane has
// finished with it, so entries past the commit cursor are exactly the
// commands that were accepted but never finished. Recovery replays them.
//
// Keys are lexicographically ordered for range scans:
//   - j/{topic}/{list}/m           (metadata: lastSeq)
//   - j/{topic}/{list}/e/{seq_be8} (entries)
//   - j/{topic}/{list}/c           (commit cursor)
//   - lists/{list}                 (index of lists with a command log)
//   - idem/{commandId}             (first-seen time, ms)
//
// Topics are "cmd" for accepted commands and "dlq" for commands that
// exhausted their retries.
//
// Records are stored as: uvarint headerLen | header | payload | crc32c(header|payload).
package journal
