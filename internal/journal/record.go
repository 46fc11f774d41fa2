package journal

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
)

// Header is the metadata stored alongside each journaled command.
type Header struct {
	CommandID string `json:"commandId"`
	Kind      string `json:"kind"`
	// AtMs is the append time in unix milliseconds.
	AtMs     int64  `json:"at"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeRecord frames header and payload with a checksum.
func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

// DecodeRecord reverses EncodeRecord; ok is false on truncation or checksum
// mismatch.
func DecodeRecord(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || int(n)+int(hlen)+4 > len(b) {
		return nil, nil, false
	}
	h := b[n : n+int(hlen)]
	p := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, h)
	crc = crc32.Update(crc, castagnoli, p)
	if crc != expect {
		return nil, nil, false
	}
	return append([]byte(nil), h...), append([]byte(nil), p...), true
}

func encodeEntry(h Header, payload []byte) ([]byte, error) {
	hb, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return EncodeRecord(hb, payload), nil
}

func decodeEntry(seq uint64, raw []byte) (Entry, bool) {
	hb, payload, ok := DecodeRecord(raw)
	if !ok {
		return Entry{}, false
	}
	var h Header
	if err := json.Unmarshal(hb, &h); err != nil {
		return Entry{}, false
	}
	return Entry{Seq: seq, Header: h, Payload: payload}, true
}
