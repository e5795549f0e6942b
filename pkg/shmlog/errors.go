package shmlog

import "errors"

// Sentinel errors returned by shmlog operations.
//
// Callers should use [errors.Is] to check error types:
//
//	err := cur.Next()
//	if errors.Is(err, shmlog.ErrNoMoreData) {
//	    time.Sleep(pollInterval)
//	}
//
// The end of a snapshot stream is reported as [io.EOF].
var (
	// ErrNotFound indicates no log chunk exists in the shared memory.
	//
	// Usually the producer has not been started yet.
	ErrNotFound = errors.New("shmlog: log not found")

	// ErrNotInitialized indicates the log chunk exists but the producer has
	// not finished initializing it (generation is zero).
	//
	// Recovery: retry the open after a short delay.
	ErrNotInitialized = errors.New("shmlog: log not initialized")

	// ErrBadFormat indicates a chunk or snapshot stream does not carry the
	// expected marker or identifier.
	ErrBadFormat = errors.New("shmlog: bad format")

	// ErrTruncated indicates a snapshot stream ended inside its file
	// identifier.
	ErrTruncated = errors.New("shmlog: truncated")

	// ErrIO indicates reading a snapshot stream failed.
	//
	// Sticky: all later calls to Next return the same error.
	ErrIO = errors.New("shmlog: i/o error")

	// ErrNoMoreData indicates a live cursor has caught up with the producer.
	//
	// Transient: retry later.
	ErrNoMoreData = errors.New("shmlog: no more data")

	// ErrOverrun indicates the producer has overwritten, or is about to
	// overwrite, the position a live cursor reads from.
	//
	// Ordering and completeness are lost. Recovery: Reset the cursor or open
	// a new one, accepting a gap.
	ErrOverrun = errors.New("shmlog: log overrun")

	// ErrAbandoned indicates the producer is gone and the log will not grow.
	//
	// Recovery: close the cursor and open a new one once a producer runs.
	ErrAbandoned = errors.New("shmlog: log abandoned")

	// ErrUnsupported indicates the cursor variant does not implement the
	// requested operation.
	//
	// This is a programming error.
	ErrUnsupported = errors.New("shmlog: operation not supported")

	// ErrInvalidInput indicates invalid arguments were provided.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("shmlog: invalid input")

	// ErrCorrupt indicates the shared log violates the record protocol, for
	// example a zero header word or a record running past the ring end.
	ErrCorrupt = errors.New("shmlog: corrupt")

	// ErrClosed indicates the cursor has already been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("shmlog: closed")
)
