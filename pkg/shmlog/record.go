package shmlog

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies the kind of a log record.
//
// Tag values are assigned by the producer. Three values are reserved by the
// record protocol and never carry user data.
type Tag uint8

// Reserved tags.
const (
	// TagBogus is never written. A header word of zero is a protocol violation.
	TagBogus Tag = 0

	// TagReserved is used by the end and wrap marker words.
	TagReserved Tag = 254

	// TagBatch frames a group of records in the snapshot format. Snapshot
	// cursors skip it.
	TagBatch Tag = 255
)

// Record layout.
//
//	word 0: tag<<24 | length   (length = payload bytes, low 16 bits)
//	word 1: id                 (bit 31 client, bit 30 backend)
//	word 2..: payload, zero padded to a whole word
const (
	wordSize    = 4
	headerWords = 2
	headerBytes = headerWords * wordSize

	tagShift   = 24
	lengthMask = 0xffff

	// MaxPayload is the largest payload a single record can carry.
	MaxPayload = lengthMask
)

// Sentinel words. Both use TagReserved so they can never be mistaken for a
// record header.
const (
	endMarker  = uint32(TagReserved)<<tagShift | 0x454545
	wrapMarker = uint32(TagReserved)<<tagShift | 0x575757
)

// ID word markers.
const (
	// ClientMarker flags a record as belonging to a client-side transaction.
	ClientMarker uint32 = 1 << 31

	// BackendMarker flags a record as belonging to a backend-side transaction.
	BackendMarker uint32 = 1 << 30

	identMask = ^(ClientMarker | BackendMarker)
)

// Record is a decoded view of one log record.
//
// Payload aliases cursor-owned memory (the shared ring for a live cursor, the
// read buffer for a snapshot cursor). It is valid only until the next call to
// Next, Reset, Skip or Close on the cursor that produced it. Copy it to keep it.
type Record struct {
	Tag     Tag
	ID      uint32
	Payload []byte

	// Pos is the position the record was read from. It is the zero Position
	// for records read from a snapshot.
	Pos Position
}

// Ident returns the transaction identifier without the side markers.
func (r Record) Ident() uint32 {
	return r.ID & identMask
}

// Client reports whether the record belongs to a client-side transaction.
func (r Record) Client() bool {
	return r.ID&ClientMarker != 0
}

// Backend reports whether the record belongs to a backend-side transaction.
func (r Record) Backend() bool {
	return r.ID&BackendMarker != 0
}

// IsZero reports whether r is the empty record (no record available).
func (r Record) IsZero() bool {
	return r.Tag == TagBogus && r.Payload == nil
}

func headerWord(tag Tag, length int) uint32 {
	return uint32(tag)<<tagShift | uint32(length)&lengthMask
}

func wordTag(w uint32) Tag {
	return Tag(w >> tagShift)
}

func wordLength(w uint32) int {
	return int(w & lengthMask)
}

// payloadWords returns the number of words needed for n payload bytes.
func payloadWords(n int) int {
	return (n + wordSize - 1) / wordSize
}

// recordWords returns the total encoded size in words of the record whose
// header word is w.
func recordWords(w uint32) int {
	return headerWords + payloadWords(wordLength(w))
}

// validateUserRecord rejects tags reserved by the protocol and oversized
// payloads.
func validateUserRecord(tag Tag, payload []byte) error {
	switch tag {
	case TagBogus, TagReserved, TagBatch:
		return fmt.Errorf("tag %d is reserved: %w", tag, ErrInvalidInput)
	}

	if len(payload) > MaxPayload {
		return fmt.Errorf("payload length %d exceeds max %d: %w", len(payload), MaxPayload, ErrInvalidInput)
	}

	return nil
}

// appendRecord appends the little-endian encoding of a record to dst.
func appendRecord(dst []byte, tag Tag, id uint32, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, headerWord(tag, len(payload)))
	dst = binary.LittleEndian.AppendUint32(dst, id)
	dst = append(dst, payload...)

	for pad := payloadWords(len(payload))*wordSize - len(payload); pad > 0; pad-- {
		dst = append(dst, 0)
	}

	return dst
}
