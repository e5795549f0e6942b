package shmlog

import (
	"errors"
	"fmt"
)

// Chunk is one mapped shared-memory allocation published by the producer.
type Chunk interface {
	// Bytes returns the mapped memory. The slice stays valid for the lifetime
	// of the chunk even after the producer is gone.
	Bytes() []byte

	// Valid reports whether the mapping still refers to the producer's live
	// allocation.
	Valid() bool

	// Abandoned reports whether the producer process is gone.
	Abandoned() bool
}

// Locator finds chunks in the shared memory by class.
//
// Find returns an error wrapping [ErrNotFound] when no chunk of that class
// exists.
type Locator interface {
	Find(class string) (Chunk, error)
}

// LiveOptions configures [OpenLive].
type LiveOptions struct {
	// Class is the chunk class holding the log. Default: [DefaultClass].
	Class string

	// Tail starts the cursor at the producer's write edge, so only records
	// written after the open are returned.
	//
	// When false the cursor starts at the same point [LiveCursor.Reset] picks.
	Tail bool
}

// LiveCursor reads records directly from a shared ring that a producer
// process writes concurrently.
//
// A LiveCursor never writes to the shared memory and takes no locks. It
// tracks its own position and detects when the producer has lapped it
// ([ErrOverrun]) or has gone away ([ErrAbandoned]).
//
// A LiveCursor must be obtained via [OpenLive] or [NewLiveCursor].
type LiveCursor struct {
	_ [0]func() // prevent external construction

	chunk Chunk
	head  logHead

	// segSize is the segment size in words, fixed at open time.
	segSize int

	next   Position
	rec    Record
	closed bool
}

var (
	_ Cursor   = (*LiveCursor)(nil)
	_ Resetter = (*LiveCursor)(nil)
	_ Skipper  = (*LiveCursor)(nil)
	_ Checker  = (*LiveCursor)(nil)
)

// OpenLive locates the log chunk through loc and opens a cursor on it.
//
// Possible errors:
//   - [ErrNotFound]: no chunk of the class exists (producer not started?)
//   - [ErrBadFormat]: the chunk is too small or has no log marker
//   - [ErrNotInitialized]: the producer has not initialized the log yet
//   - [ErrCorrupt]: segment bookkeeping points outside the ring
//   - [ErrInvalidInput]: nil locator
func OpenLive(loc Locator, opts LiveOptions) (*LiveCursor, error) {
	if loc == nil {
		return nil, fmt.Errorf("locator is required: %w", ErrInvalidInput)
	}

	class := opts.Class
	if class == "" {
		class = DefaultClass
	}

	chunk, err := loc.Find(class)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("no %q chunk found (producer not started?): %w", class, err)
		}

		return nil, fmt.Errorf("find %q chunk: %w", class, err)
	}

	return NewLiveCursor(chunk, opts.Tail)
}

// NewLiveCursor opens a cursor on an already located chunk.
//
// See [OpenLive] for the possible errors.
func NewLiveCursor(chunk Chunk, tail bool) (*LiveCursor, error) {
	// The producer stores words in native order and the ring is read with
	// atomic loads, which cannot byte-swap.
	if !isLittleEndian {
		return nil, errors.New("shmlog requires little-endian CPU (x86_64, arm64)")
	}

	if chunk == nil {
		return nil, fmt.Errorf("chunk is required: %w", ErrInvalidInput)
	}

	data := chunk.Bytes()
	if len(data) < RegionSize(minRingWords) {
		return nil, fmt.Errorf("chunk size %d is less than minimum %d: %w", len(data), RegionSize(minRingWords), ErrBadFormat)
	}

	head := newLogHead(data)
	if !head.markerOK() {
		return nil, fmt.Errorf("not a log chunk: %w", ErrBadFormat)
	}

	if head.generation() == 0 {
		return nil, fmt.Errorf("log chunk not initialized: %w", ErrNotInitialized)
	}

	c := &LiveCursor{
		chunk:   chunk,
		head:    head,
		segSize: head.ringWords / Segments,
	}

	var err error
	if tail {
		err = c.seekTail()
	} else {
		err = c.reset()
	}

	if err != nil {
		return nil, err
	}

	return c, nil
}

// seekTail positions the cursor on the first end or wrap marker at or after
// the start of the producer's current segment.
func (c *LiveCursor) seekTail() error {
	segment := c.head.segment()

	start := c.head.segmentOffset(segment)
	if start < 0 {
		return fmt.Errorf("current segment %d never written: %w", segment, ErrNotInitialized)
	}

	if start >= int64(c.head.ringWords) {
		return fmt.Errorf("segment %d offset %d outside ring of %d words: %w", segment, start, c.head.ringWords, ErrCorrupt)
	}

	off := int(start)
	for off < c.head.ringWords {
		w := c.head.word(off)
		if w == endMarker || w == wrapMarker {
			break
		}

		if w == 0 {
			return fmt.Errorf("zero header word at offset %d: %w", off, ErrCorrupt)
		}

		off += recordWords(w)
	}

	if off >= c.head.ringWords {
		return fmt.Errorf("no end marker after offset %d: %w", start, ErrCorrupt)
	}

	c.next = Position{Offset: off, Generation: c.head.generation()}
	c.rec = Record{}

	return nil
}

// Reset repositions the cursor three segments ahead of the producer's current
// segment, which is the oldest data still considered safe. If that segment was
// never written (the producer has not wrapped yet), the cursor starts at the
// ring start.
//
// Even if the producer wraps right after the reset, the reader keeps a full
// segment of margin before [LiveCursor.Check] reports [Unsafe].
func (c *LiveCursor) Reset() error {
	if err := c.usable(); err != nil {
		return err
	}

	return c.reset()
}

func (c *LiveCursor) reset() error {
	segment := (c.head.segment() + 3) % Segments

	off := c.head.segmentOffset(segment)
	if off < 0 {
		segment = 0
		off = c.head.segmentOffset(segment)
	}

	if off < 0 || off >= int64(c.head.ringWords) {
		return fmt.Errorf("segment %d offset %d outside ring of %d words: %w", segment, off, c.head.ringWords, ErrCorrupt)
	}

	c.next = Position{Offset: int(off), Generation: c.head.generation()}
	c.rec = Record{}

	return nil
}

// Skip moves the read position forward by words without decoding. The caller
// must know that a record header starts there.
//
// Returns [ErrInvalidInput] for a negative count or a target outside the ring;
// the position is unchanged in that case.
func (c *LiveCursor) Skip(words int) error {
	if err := c.usable(); err != nil {
		return err
	}

	if words < 0 {
		return fmt.Errorf("skip %d words: %w", words, ErrInvalidInput)
	}

	// Compare before adding; a huge count would overflow the sum.
	if words >= c.head.ringWords-c.next.Offset {
		return fmt.Errorf("skip %d words from offset %d past ring end %d: %w", words, c.next.Offset, c.head.ringWords, ErrInvalidInput)
	}

	c.next.Offset += words
	c.rec = Record{}

	return nil
}

// Check classifies how safe pos still is to read.
//
// The null position is vacuously [Safe]. Returns [ErrInvalidInput] if pos lies
// outside the ring.
func (c *LiveCursor) Check(pos Position) (Safety, error) {
	if err := c.usable(); err != nil {
		return Unsafe, err
	}

	if pos.IsZero() {
		return Safe, nil
	}

	if pos.Offset < 0 || pos.Offset >= c.head.ringWords {
		return Unsafe, fmt.Errorf("offset %d outside ring of %d words: %w", pos.Offset, c.head.ringWords, ErrInvalidInput)
	}

	return c.check(pos), nil
}

func (c *LiveCursor) check(pos Position) Safety {
	gen := c.head.generation()

	seqDiff := gen - pos.Generation
	if gen < pos.Generation {
		// Wrap around skips 0.
		seqDiff--
	}

	if seqDiff > 1 {
		// A full lap or more behind.
		return Unsafe
	}

	segment := pos.Offset / c.segSize
	if segment >= Segments {
		// Rounding spills into the last segment.
		segment = Segments - 1
	}

	segDiff := ((segment-c.head.segment())%Segments + Segments) % Segments

	switch {
	case segDiff == 0 && seqDiff == 0:
		// Same segment as the producer, close to the tail.
		return Safe
	case segDiff <= 2:
		return Unsafe
	case segDiff <= 4:
		return Warning
	default:
		return Safe
	}
}

// Next advances to the next record.
//
// Returns nil when a record is available through [LiveCursor.Record], or:
//   - [ErrNoMoreData]: caught up with the producer; retry later
//   - [ErrOverrun]: the producer has lapped the cursor; Reset to continue
//   - [ErrAbandoned]: the producer is gone and nothing more will be written
//   - [ErrCorrupt]: the ring violates the record protocol
//   - [ErrClosed]
//
// ErrOverrun and ErrAbandoned are re-evaluated on every call, so they keep
// being returned until the cursor is Reset.
func (c *LiveCursor) Next() error {
	if err := c.usable(); err != nil {
		return err
	}

	c.rec = Record{}

	if c.check(c.next) == Unsafe {
		return ErrOverrun
	}

	if c.head.word(c.next.Offset) == endMarker {
		if !c.chunk.Valid() || c.chunk.Abandoned() {
			return ErrAbandoned
		}
	}

	for {
		off := c.next.Offset

		w := c.head.word(off)
		switch w {
		case 0:
			return fmt.Errorf("zero header word at offset %d: %w", off, ErrCorrupt)

		case wrapMarker:
			if off == 0 {
				return fmt.Errorf("wrap marker at ring start: %w", ErrCorrupt)
			}

			c.next.Offset = 0

			continue

		case endMarker:
			if off != 0 && c.next.Generation != c.head.generation() {
				// The producer wrapped since the generation was captured; the
				// data ahead of this marker is from the new lap.
				c.next.Offset = 0

				continue
			}

			return ErrNoMoreData
		}

		if wordTag(w) == TagReserved {
			return fmt.Errorf("reserved tag word %#08x at offset %d: %w", w, off, ErrCorrupt)
		}

		// The length comes from a racy read; bound it before slicing the ring.
		words := recordWords(w)
		if off+words >= c.head.ringWords {
			return fmt.Errorf("record at offset %d with %d words runs past ring end %d: %w", off, words, c.head.ringWords, ErrCorrupt)
		}

		if off == 0 {
			c.next.Generation = c.head.generation()
		}

		c.rec = Record{
			Tag:     wordTag(w),
			ID:      c.head.word(off + 1),
			Payload: c.head.bytes(off+headerWords, wordLength(w)),
			Pos:     c.next,
		}
		c.next.Offset = off + words

		return nil
	}
}

// Record returns the record produced by the last successful Next.
//
// The payload aliases shared memory that the producer will eventually
// overwrite. Call [LiveCursor.Check] with the record's Pos after consuming it
// to confirm it was not overwritten while being read.
func (c *LiveCursor) Record() Record {
	if c == nil {
		return Record{}
	}

	return c.rec
}

// Position returns the position the next call to Next reads from.
func (c *LiveCursor) Position() Position {
	if c == nil {
		return Position{}
	}

	return c.next
}

// Close releases the cursor. It never touches the shared memory; unmapping the
// chunk is up to whoever mapped it. Close is idempotent.
func (c *LiveCursor) Close() error {
	if c == nil {
		return nil
	}

	c.closed = true
	c.rec = Record{}

	return nil
}

// usable reports why c cannot be used: a nil cursor or a closed one.
func (c *LiveCursor) usable() error {
	if c == nil {
		return fmt.Errorf("nil live cursor: %w", ErrInvalidInput)
	}

	if c.closed {
		return ErrClosed
	}

	return nil
}
