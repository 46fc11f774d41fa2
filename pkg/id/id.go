package id

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"sync"
	"time"
)

// ID is a 128-bit identifier: [8 bytes ms][4 bytes node][4 bytes sequence].
type ID [16]byte

// ErrMalformed is returned by Parse for strings that are not ids.
var ErrMalformed = errors.New("id: malformed")

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// String returns a 32-char lowercase hex string.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Prefixed returns prefix + "_" + String().
func (i ID) Prefixed(prefix string) string {
	if prefix == "" {
		return i.String()
	}
	return prefix + "_" + i.String()
}

// Time returns the millisecond timestamp component.
func (i ID) Time() time.Time {
	return time.UnixMilli(int64(binary.BigEndian.Uint64(i[0:8])))
}

// Node returns the node component.
func (i ID) Node() uint32 { return binary.BigEndian.Uint32(i[8:12]) }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Parse accepts the output of String or Prefixed.
func Parse(s string) (ID, error) {
	if idx := strings.LastIndexByte(s, '_'); idx >= 0 {
		s = s[idx+1:]
	}
	var out ID
	if len(s) != 32 {
		return out, ErrMalformed
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, ErrMalformed
	}
	return out, nil
}

// Generator produces monotonically increasing IDs for one node.
type Generator struct {
	mu       sync.Mutex
	node     uint32
	lastMs   int64
	sequence uint32
}

// NewGenerator creates a Generator with a random node component.
func NewGenerator() *Generator {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return &Generator{node: binary.BigEndian.Uint32(b[:])}
}

// NewNodeGenerator creates a Generator with a fixed node component.
func NewNodeGenerator(node uint32) *Generator { return &Generator{node: node} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.sequence == math.MaxUint32 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return makeID(ms, g.node, g.sequence)
}

func makeID(ms int64, node, seq uint32) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint32(id[8:12], node)
	binary.BigEndian.PutUint32(id[12:16], seq)
	return id
}

var defaultGen = NewGenerator()

// New returns a prefixed id from the process-wide generator.
func New(prefix string) string { return defaultGen.Next().Prefixed(prefix) }
