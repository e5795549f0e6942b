package shmlog

import "fmt"

// Cursor reads records one at a time from a log.
//
// Next advances to the next record. It returns nil when a record is
// available through Record, or one of:
//   - [ErrNoMoreData]: a live cursor caught up with the producer; retry later
//   - [io.EOF]: a snapshot is exhausted
//   - [ErrOverrun], [ErrAbandoned]: the live cursor cannot continue until Reset
//   - [ErrIO], [ErrCorrupt], [ErrClosed]
//
// Cursors are not safe for concurrent use. Independent cursors over the same
// log never affect each other.
type Cursor interface {
	Next() error
	Record() Record
	Close() error
}

// Resetter is implemented by cursors that can reposition to a safe start.
type Resetter interface {
	Reset() error
}

// Skipper is implemented by cursors that can move forward by a raw word count
// without decoding.
type Skipper interface {
	Skip(words int) error
}

// Checker is implemented by cursors that can tell whether a previously
// captured position is still safe to read.
type Checker interface {
	Check(pos Position) (Safety, error)
}

// Position is a location in a live log: a word offset into the ring plus the
// generation captured the last time the cursor passed the ring start.
//
// The zero Position is the null position. A live log is never opened with
// generation zero, so a captured Position always has Generation != 0.
type Position struct {
	Offset     int
	Generation uint32
}

// IsZero reports whether p is the null position.
func (p Position) IsZero() bool {
	return p.Generation == 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d@%d", p.Offset, p.Generation)
}

// Safety classifies how safe it is to read from a position. Values are
// ordered: Unsafe < Warning < Safe.
type Safety int

const (
	// Unsafe means the producer has likely overwritten, or is about to
	// overwrite, the position.
	Unsafe Safety = iota

	// Warning means the reader is falling behind.
	Warning

	// Safe means the position is comfortably behind the producer.
	Safe
)

func (s Safety) String() string {
	switch s {
	case Unsafe:
		return "unsafe"
	case Warning:
		return "warning"
	case Safe:
		return "safe"
	default:
		return fmt.Sprintf("Safety(%d)", int(s))
	}
}

// Next advances c to its next record.
//
// Returns [ErrInvalidInput] for a nil cursor, including a typed nil
// *LiveCursor or *SnapshotCursor.
func Next(c Cursor) error {
	if c == nil {
		return fmt.Errorf("next: nil cursor: %w", ErrInvalidInput)
	}

	return c.Next()
}

// Reset repositions c to its variant-defined start.
//
// Returns [ErrUnsupported] if c does not implement [Resetter].
func Reset(c Cursor) error {
	if c == nil {
		return fmt.Errorf("reset: nil cursor: %w", ErrInvalidInput)
	}

	r, ok := c.(Resetter)
	if !ok {
		return fmt.Errorf("reset %T: %w", c, ErrUnsupported)
	}

	return r.Reset()
}

// Skip moves c forward by words without decoding.
//
// Returns [ErrUnsupported] if c does not implement [Skipper].
func Skip(c Cursor, words int) error {
	if c == nil {
		return fmt.Errorf("skip: nil cursor: %w", ErrInvalidInput)
	}

	s, ok := c.(Skipper)
	if !ok {
		return fmt.Errorf("skip %T: %w", c, ErrUnsupported)
	}

	return s.Skip(words)
}

// Check reports how safe pos still is to read through c.
//
// Returns [ErrUnsupported] if c does not implement [Checker].
func Check(c Cursor, pos Position) (Safety, error) {
	if c == nil {
		return Unsafe, fmt.Errorf("check: nil cursor: %w", ErrInvalidInput)
	}

	ch, ok := c.(Checker)
	if !ok {
		return Unsafe, fmt.Errorf("check %T: %w", c, ErrUnsupported)
	}

	return ch.Check(pos)
}

// Close releases the cursor's private resources. Close(nil) is a no-op.
func Close(c Cursor) error {
	if c == nil {
		return nil
	}

	return c.Close()
}
