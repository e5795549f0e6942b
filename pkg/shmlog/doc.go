// Package shmlog reads a structured event log written by a separate producer
// process.
//
// The log reaches a reader in one of two ways:
//   - live, through a ring buffer in shared memory ([LiveCursor])
//   - as a serialized snapshot read from a file or pipe ([SnapshotCursor])
//
// Both implement [Cursor], so consumers can process either source with the
// same loop.
//
// # Basic Usage
//
//	cur, err := shmlog.OpenLive(dir, shmlog.LiveOptions{Tail: true})
//	if err != nil {
//	    // handle [ErrNotFound]/[ErrNotInitialized] by retrying later
//	}
//	defer cur.Close()
//
//	for {
//	    err := cur.Next()
//	    switch {
//	    case err == nil:
//	        rec := cur.Record()
//	        // use rec before the next call to Next
//	    case errors.Is(err, shmlog.ErrNoMoreData):
//	        time.Sleep(10 * time.Millisecond)
//	    case errors.Is(err, shmlog.ErrOverrun):
//	        _ = shmlog.Reset(cur) // accept a gap
//	    default:
//	        return err
//	    }
//	}
//
// # Concurrency
//
// shmlog uses a single-producer, many-reader model with no locks and no
// feedback to the producer:
//   - each cursor tracks its own position; cursors never coordinate
//   - a cursor is NOT safe for concurrent use by multiple goroutines
//   - a reader that falls too far behind gets [ErrOverrun]; the producer
//     never waits
//
// # Optional Operations
//
// Reset, Skip and Check are only meaningful for the live ring. Use the
// package-level [Reset], [Skip] and [Check] functions to call them on any
// [Cursor]; they return [ErrUnsupported] for variants that lack them.
//
// # Error Handling
//
// Transient ([ErrNoMoreData]): poll again later.
//
// Fatal for the cursor ([ErrOverrun], [ErrAbandoned]): returned again on every
// Next until the cursor is Reset, or closed and reopened.
//
// Terminal for a snapshot ([io.EOF], [ErrIO]): sticky.
package shmlog
