package journal

import "encoding/binary"

const (
	topicCommands   = "cmd"
	topicDeadLetter = "dlq"
)

var (
	sep        = byte('/')
	logPrefix  = []byte("j/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
	cursorSfx  = []byte("/c")
	listsSeg   = []byte("lists/")
	idemSeg    = []byte("idem/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func logBase(topic, list string) []byte {
	k := make([]byte, 0, len(topic)+len(list)+16)
	k = append(k, logPrefix...)
	k = append(k, topic...)
	k = append(k, sep)
	k = append(k, list...)
	return k
}

// KeyMeta builds the log metadata key.
func KeyMeta(topic, list string) []byte {
	return append(logBase(topic, list), metaSuffix...)
}

// KeyEntry builds the entry key with a big-endian sequence for ordering.
func KeyEntry(topic, list string, seq uint64) []byte {
	k := append(logBase(topic, list), entrySeg...)
	return appendBE8(k, seq)
}

// KeyCursor builds the commit cursor key.
func KeyCursor(topic, list string) []byte {
	return append(logBase(topic, list), cursorSfx...)
}

// KeyList builds the list index key.
func KeyList(list string) []byte {
	return append(append([]byte(nil), listsSeg...), list...)
}

// KeyIdem builds the idempotency index key for a command id.
func KeyIdem(commandID string) []byte {
	return append(append([]byte(nil), idemSeg...), commandID...)
}
