package shmlog

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// Segments is the number of equal-sized segments the ring is divided into.
const Segments = 8

// DefaultClass is the chunk class the producer publishes its log under.
const DefaultClass = "Log"

// Shared region layout (byte offsets from the chunk start).
const (
	offMarker         = 0x00 // [8]byte
	offGeneration     = 0x08 // uint32
	offSegment        = 0x0C // uint32
	offSegmentOffsets = 0x10 // [Segments]int64, word offsets, -1 = never written
	offRing           = 0x50 // []uint32 up to the chunk end

	markerLen = 8

	// minRingWords keeps every segment large enough to hold a minimal record
	// and a marker.
	minRingWords = Segments * 4
)

// headMarker identifies a chunk holding a log.
var headMarker = [markerLen]byte{'S', 'H', 'M', 'L', 'O', 'G', 0x00, 0x01}

// isLittleEndian is true if the CPU uses little-endian byte order.
// Computed once at package init time.
var isLittleEndian = func() bool {
	var buf [2]byte
	buf[0] = 0x01

	return binary.NativeEndian.Uint16(buf[:]) == 0x01
}()

// RegionSize returns the chunk size in bytes needed for a ring of ringWords
// words.
func RegionSize(ringWords int) int {
	return offRing + ringWords*wordSize
}

// logHead is a view of the shared header and ring.
//
// Every accessor performs a single word-sized atomic load. The producer may
// change any field between two calls; callers must never assume that values
// from separate loads are consistent with each other.
type logHead struct {
	data []byte
	ring []byte

	// ringWords is the ring length in words, fixed at open time.
	ringWords int
}

func newLogHead(data []byte) logHead {
	ring := data[offRing:]
	ring = ring[:len(ring)/wordSize*wordSize]

	return logHead{data: data, ring: ring, ringWords: len(ring) / wordSize}
}

func (h logHead) markerOK() bool {
	return [markerLen]byte(h.data[offMarker:offMarker+markerLen]) == headMarker
}

func (h logHead) generation() uint32 {
	return loadWord(h.data[offGeneration:])
}

// segment returns the producer's current segment, reduced modulo Segments so a
// torn or garbage value can never index out of range.
func (h logHead) segment() int {
	return int(loadWord(h.data[offSegment:]) % Segments)
}

func (h logHead) segmentOffset(segment int) int64 {
	return loadInt64(h.data[offSegmentOffsets+segment*8:])
}

// word returns the ring word at word offset off.
func (h logHead) word(off int) uint32 {
	return loadWord(h.ring[off*wordSize:])
}

// bytes returns n bytes of the ring starting at word offset off.
func (h logHead) bytes(off, n int) []byte {
	start := off * wordSize

	return h.ring[start : start+n : start+n]
}

// loadWord performs an atomic 32-bit load from a 4-byte-aligned position in
// the buffer.
//
// Preconditions:
//   - buf must be at least 4 bytes
//   - buf[0] must be 4-byte aligned (the chunk is page aligned and every
//     header field and ring word sits at a multiple of 4)
func loadWord(buf []byte) uint32 {
	// Bounds check.
	_ = buf[3]

	// SAFETY: alignment is guaranteed by the layout above. The load races with
	// producer stores; atomic access keeps each word untorn.
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&buf[0])))
}

// storeWord performs an atomic 32-bit store. Used by the producer to publish
// header words after the record body is in place.
func storeWord(buf []byte, val uint32) {
	_ = buf[3]

	// SAFETY: Same alignment guarantees as loadWord.
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&buf[0])), val)
}

// loadInt64 performs an atomic 64-bit load of a segment offset.
//
// Preconditions:
//   - buf[0] must be 8-byte aligned (segment offsets start at 0x10)
func loadInt64(buf []byte) int64 {
	_ = buf[7]

	// SAFETY: offSegmentOffsets is 8-byte aligned relative to a page aligned
	// chunk.
	return atomic.LoadInt64((*int64)(unsafe.Pointer(&buf[0])))
}

func storeInt64(buf []byte, val int64) {
	_ = buf[7]

	// SAFETY: Same alignment guarantees as loadInt64.
	atomic.StoreInt64((*int64)(unsafe.Pointer(&buf[0])), val)
}
