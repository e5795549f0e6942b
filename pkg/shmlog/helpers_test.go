// helpers_test.go - Shared constants, fakes and helpers for shmlog tests.

package shmlog_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

// =============================================================================
// Header layout constants (must match layout.go)
// =============================================================================

const (
	offGeneration     = 0x08
	offSegment        = 0x0C
	offSegmentOffsets = 0x10
	offRing           = 0x50

	endMarkerWord  = uint32(254)<<24 | 0x454545
	wrapMarkerWord = uint32(254)<<24 | 0x575757
)

// testRingWords gives 64-word segments.
const testRingWords = shmlog.Segments * 64

// =============================================================================
// Fakes
// =============================================================================

// memChunk is a chunk backed by ordinary memory whose Valid and Abandoned answers tests can flip.
type memChunk struct {
	data      []byte
	invalid   bool
	abandoned bool
}

func (c *memChunk) Bytes() []byte   { return c.data }
func (c *memChunk) Valid() bool     { return !c.invalid }
func (c *memChunk) Abandoned() bool { return c.abandoned }

// memLocator serves chunks by class.
type memLocator map[string]shmlog.Chunk

func (l memLocator) Find(class string) (shmlog.Chunk, error) {
	c, ok := l[class]
	if !ok {
		return nil, fmt.Errorf("class %q: %w", class, shmlog.ErrNotFound)
	}

	return c, nil
}

// =============================================================================
// Log helpers
// =============================================================================

// newLog initializes a log with the given ring size and returns its chunk and
// producer.
func newLog(tb testing.TB, ringWords int, opts shmlog.WriterOptions) (*memChunk, *shmlog.Writer) {
	tb.Helper()

	region := make([]byte, shmlog.RegionSize(ringWords))

	w, err := shmlog.NewWriter(region, opts)
	require.NoError(tb, err, "NewWriter")

	return &memChunk{data: region}, w
}

// appendN appends n records with payloads "rec-<i>" numbered from start.
// Returns the payloads written.
func appendN(tb testing.TB, w *shmlog.Writer, start, n int) []string {
	tb.Helper()

	out := make([]string, 0, n)

	for i := start; i < start+n; i++ {
		payload := fmt.Sprintf("rec-%04d", i)
		err := w.Append(shmlog.Tag(1+i%200), uint32(i)|shmlog.ClientMarker, []byte(payload))
		require.NoError(tb, err, "Append %d", i)

		out = append(out, payload)
	}

	return out
}

// drain calls Next until it fails and returns the payloads read and the
// terminating error.
func drain(tb testing.TB, cur shmlog.Cursor) ([]string, error) {
	tb.Helper()

	var out []string

	for iter := 0; iter < 1_000_000; iter++ {
		err := cur.Next()
		if err != nil {
			return out, err
		}

		out = append(out, string(cur.Record().Payload))
	}

	tb.Fatal("drain: cursor never stopped")

	return nil, errors.New("unreachable")
}

// setHeader overwrites the producer-owned generation and current segment.
func setHeader(data []byte, generation uint32, segment int) {
	binary.LittleEndian.PutUint32(data[offGeneration:], generation)
	binary.LittleEndian.PutUint32(data[offSegment:], uint32(segment))
}

// setRingWord overwrites one ring word.
func setRingWord(data []byte, off int, val uint32) {
	binary.LittleEndian.PutUint32(data[offRing+off*4:], val)
}
