package shmlog

import (
	"errors"
	"fmt"
)

// WriterOptions configures [NewWriter].
type WriterOptions struct {
	// Generation is the initial generation. Zero means 1.
	//
	// Tests start close to the uint32 limit to exercise wraparound.
	Generation uint32
}

// Writer is the producer side of a live log. It lays out the shared header
// and appends records to the ring, wrapping and bumping the generation when
// the ring is full.
//
// Exactly one Writer may write a region. Writer methods are not safe for
// concurrent use; readers in other goroutines or processes need no
// coordination with it.
type Writer struct {
	_ [0]func() // prevent external construction

	head    logHead
	segSize int

	// off is the word offset of the trailing end marker, where the next
	// record goes.
	off     int
	segment int
}

// NewWriter initializes region as an empty log and returns a Writer for it.
// Any previous content of region is discarded.
//
// Use [RegionSize] to size the region. Returns [ErrInvalidInput] if region is
// too small.
func NewWriter(region []byte, opts WriterOptions) (*Writer, error) {
	if !isLittleEndian {
		return nil, errors.New("shmlog requires little-endian CPU (x86_64, arm64)")
	}

	if len(region) < RegionSize(minRingWords) {
		return nil, fmt.Errorf("region size %d is less than minimum %d: %w", len(region), RegionSize(minRingWords), ErrInvalidInput)
	}

	head := newLogHead(region)

	// Unpublish while the layout is rewritten.
	storeWord(region[offGeneration:], 0)

	clear(head.ring)
	copy(region[offMarker:], headMarker[:])

	for i := 0; i < Segments; i++ {
		storeInt64(region[offSegmentOffsets+i*8:], -1)
	}

	storeInt64(region[offSegmentOffsets:], 0)
	storeWord(region[offSegment:], 0)
	storeWord(head.ring, endMarker)

	gen := opts.Generation
	if gen == 0 {
		gen = 1
	}

	storeWord(region[offGeneration:], gen)

	return &Writer{
		head:    head,
		segSize: head.ringWords / Segments,
	}, nil
}

// Append writes one record and publishes it to readers.
//
// The body and the trailing end marker are written first; the header word
// replacing the previous end marker is stored last, so a reader sees either
// the complete record or the end marker.
//
// Returns [ErrInvalidInput] for reserved tags, oversized payloads, or records
// larger than a segment.
func (w *Writer) Append(tag Tag, id uint32, payload []byte) error {
	err := validateUserRecord(tag, payload)
	if err != nil {
		return err
	}

	words := headerWords + payloadWords(len(payload))
	if words >= w.segSize {
		return fmt.Errorf("record of %d words does not fit a segment of %d words: %w", words, w.segSize, ErrInvalidInput)
	}

	// Keep room for the trailing marker.
	if w.off+words+1 > w.head.ringWords {
		w.wrap()
	}

	off := w.off
	ring := w.head.ring

	storeWord(ring[(off+1)*wordSize:], id)

	body := ring[(off+headerWords)*wordSize : (off+words)*wordSize]
	n := copy(body, payload)
	clear(body[n:])

	storeWord(ring[(off+words)*wordSize:], endMarker)
	storeWord(ring[off*wordSize:], headerWord(tag, len(payload)))

	w.off = off + words
	w.advanceSegment()

	return nil
}

// wrap restarts writing at the ring start and bumps the generation.
func (w *Writer) wrap() {
	ring := w.head.ring

	storeWord(ring, endMarker)

	if w.off != 0 {
		storeWord(ring[w.off*wordSize:], wrapMarker)
	}

	w.off = 0
	w.segment = 0
	storeInt64(w.head.data[offSegmentOffsets:], 0)
	storeWord(w.head.data[offSegment:], 0)

	gen := w.head.generation() + 1
	if gen == 0 {
		// Zero means not initialized.
		gen = 1
	}

	storeWord(w.head.data[offGeneration:], gen)
}

// advanceSegment records the start of every segment the write offset entered.
func (w *Writer) advanceSegment() {
	segment := min(w.off/w.segSize, Segments-1)

	for w.segment < segment {
		w.segment++
		storeInt64(w.head.data[offSegmentOffsets+w.segment*8:], int64(w.off))
		storeWord(w.head.data[offSegment:], uint32(w.segment))
	}
}

// Generation returns the current generation.
func (w *Writer) Generation() uint32 {
	return w.head.generation()
}

// Segment returns the segment currently written.
func (w *Writer) Segment() int {
	return w.segment
}

// Offset returns the word offset the next record is written at.
func (w *Writer) Offset() int {
	return w.off
}

// RingWords returns the ring size in words.
func (w *Writer) RingWords() int {
	return w.head.ringWords
}
