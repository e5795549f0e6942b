package shmlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Snapshot stream format:
//
//	"SHMLOGF1"                       file identifier
//	record, record, ...              same encoding as the live ring
//
// Records with [TagBatch] are framing only and never returned to callers.
const (
	fileID    = "SHMLOGF1"
	fileIDLen = len(fileID)

	// defaultReadBufSize is one I/O block.
	defaultReadBufSize = 8192
)

// SnapshotCursor reads records from a serialized log stream.
//
// The stream is forward-only: [Reset], [Skip] and [Check] return
// [ErrUnsupported]. Once Next fails with [io.EOF] or [ErrIO], every later call
// returns the same error without reading again.
//
// A SnapshotCursor must be obtained via [OpenFile] or [NewSnapshotCursor].
type SnapshotCursor struct {
	_ [0]func() // prevent external construction

	r      io.Reader
	closer io.Closer // nil when the caller owns r

	buf []byte
	err error
	rec Record

	closed bool
}

var _ Cursor = (*SnapshotCursor)(nil)

// OpenFile opens the snapshot file at path. The path "-" reads standard input,
// which is never closed by the cursor.
//
// Possible errors:
//   - [ErrBadFormat]: the file does not start with the snapshot identifier
//   - [ErrTruncated]: the file ends inside the identifier
//   - [ErrIO]: reading the identifier failed
//   - [ErrInvalidInput]: empty path
//   - os errors: opening the file
func OpenFile(path string) (*SnapshotCursor, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required: %w", ErrInvalidInput)
	}

	if path == "-" {
		c, err := newSnapshotCursor(os.Stdin, nil)
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}

		return c, nil
	}

	f, err := os.Open(path) //nolint:gosec // path is caller-provided
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	c, err := newSnapshotCursor(f, f)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}

// NewSnapshotCursor reads a snapshot stream from r. The caller keeps ownership
// of r; Close does not close it.
//
// See [OpenFile] for the possible errors.
func NewSnapshotCursor(r io.Reader) (*SnapshotCursor, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is required: %w", ErrInvalidInput)
	}

	return newSnapshotCursor(r, nil)
}

func newSnapshotCursor(r io.Reader, closer io.Closer) (*SnapshotCursor, error) {
	var id [fileIDLen]byte

	n, err := io.ReadFull(r, id[:])
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, fmt.Errorf("empty log file: %w", ErrTruncated)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("read %d of %d identifier bytes: %w", n, fileIDLen, ErrTruncated)
		default:
			return nil, fmt.Errorf("read file identifier: %w: %w", ErrIO, err)
		}
	}

	if string(id[:]) != fileID {
		return nil, fmt.Errorf("not a log file: %w", ErrBadFormat)
	}

	return &SnapshotCursor{
		r:      r,
		closer: closer,
		buf:    make([]byte, defaultReadBufSize),
	}, nil
}

// Next advances to the next non-batch record.
//
// Returns nil when a record is available through [SnapshotCursor.Record], or:
//   - [io.EOF]: the stream ended at a record boundary
//   - [ErrIO]: the read failed or the stream ended inside a record
//   - [ErrClosed]
func (c *SnapshotCursor) Next() error {
	if c == nil {
		return fmt.Errorf("nil snapshot cursor: %w", ErrInvalidInput)
	}

	if c.closed {
		return ErrClosed
	}

	if c.err != nil {
		return c.err
	}

	c.rec = Record{}

	for {
		err := c.readFull(c.buf[:headerBytes], "record header")
		if err != nil {
			c.err = err

			return err
		}

		hdr := binary.LittleEndian.Uint32(c.buf)
		length := wordLength(hdr)

		size := headerBytes + payloadWords(length)*wordSize
		if len(c.buf) < size {
			grown := make([]byte, 2*size)
			copy(grown, c.buf[:headerBytes])
			c.buf = grown
		}

		if size > headerBytes {
			err = c.readFull(c.buf[headerBytes:size], "record payload")
			if err != nil {
				c.err = err

				return err
			}
		}

		tag := wordTag(hdr)
		if tag == TagBatch {
			continue
		}

		end := headerBytes + length
		c.rec = Record{
			Tag:     tag,
			ID:      binary.LittleEndian.Uint32(c.buf[wordSize:]),
			Payload: c.buf[headerBytes:end:end],
		}

		return nil
	}
}

// readFull fills dst. A clean end of stream is io.EOF; anything else that
// stops the read is ErrIO.
func (c *SnapshotCursor) readFull(dst []byte, what string) error {
	_, err := io.ReadFull(c.r, dst)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("short %s: %w: %w", what, ErrIO, err)
	case errors.Is(err, io.EOF):
		return io.EOF
	default:
		return fmt.Errorf("read %s: %w: %w", what, ErrIO, err)
	}
}

// Record returns the record produced by the last successful Next. The payload
// aliases the cursor's read buffer.
func (c *SnapshotCursor) Record() Record {
	if c == nil {
		return Record{}
	}

	return c.rec
}

// Close releases the read buffer and closes the file opened by [OpenFile].
// Close is idempotent.
func (c *SnapshotCursor) Close() error {
	if c == nil || c.closed {
		return nil
	}

	c.closed = true
	c.rec = Record{}
	c.buf = nil

	if c.closer != nil {
		err := c.closer.Close()
		if err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
	}

	return nil
}
