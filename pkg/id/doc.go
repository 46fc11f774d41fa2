// Package id generates 128-bit, lexicographically sortable identifiers for
// connections, nodes and gateway-assigned command ids.
//
// # Format
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][4 bytes node][4 bytes
// sequence]. The node component keeps ids minted by different gateway
// processes distinct; within one generator ids are strictly increasing.
//
// # Monotonicity
//
//   - If the system clock regresses, the generator pins to the last seen
//     millisecond and keeps incrementing the sequence.
//   - If the sequence would overflow within a millisecond, it waits for the
//     next millisecond.
//
// Usage
//
//	g := id.NewGenerator()
//	conn := g.Next().Prefixed("conn")   // "conn_0000018b..."
//	parsed, err := id.Parse(conn)
package id
