package shmlog_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

func ringWord(data []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(data[offRing+off*4:])
}

func segmentOffset(data []byte, segment int) int64 {
	return int64(binary.LittleEndian.Uint64(data[offSegmentOffsets+segment*8:]))
}

func Test_NewWriter_Lays_Out_Empty_Log_When_Region_Has_Garbage(t *testing.T) {
	t.Parallel()

	region := make([]byte, shmlog.RegionSize(testRingWords))
	for i := range region {
		region[i] = 0xAB
	}

	w, err := shmlog.NewWriter(region, shmlog.WriterOptions{})
	require.NoError(t, err)

	assert.Equal(t, "SHMLOG\x00\x01", string(region[:8]))
	assert.Equal(t, uint32(1), w.Generation())
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(region[offGeneration:]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(region[offSegment:]))
	assert.Equal(t, endMarkerWord, ringWord(region, 0))
	assert.Equal(t, uint32(0), ringWord(region, 1), "ring is cleared")

	assert.Equal(t, int64(0), segmentOffset(region, 0))

	for seg := 1; seg < shmlog.Segments; seg++ {
		assert.Equal(t, int64(-1), segmentOffset(region, seg), "segment %d", seg)
	}

	assert.Equal(t, testRingWords, w.RingWords())
	assert.Equal(t, 0, w.Offset())
	assert.Equal(t, 0, w.Segment())
}

func Test_NewWriter_Returns_ErrInvalidInput_When_Region_Too_Small(t *testing.T) {
	t.Parallel()

	_, err := shmlog.NewWriter(make([]byte, shmlog.RegionSize(shmlog.Segments*4)-1), shmlog.WriterOptions{})
	require.ErrorIs(t, err, shmlog.ErrInvalidInput)
}

func Test_Writer_Append_Encodes_Record_And_Trailing_End_Marker(t *testing.T) {
	t.Parallel()

	chunk, w := newLog(t, testRingWords, shmlog.WriterOptions{})

	require.NoError(t, w.Append(7, 42|shmlog.BackendMarker, []byte("hello")))

	data := chunk.data

	assert.Equal(t, uint32(7)<<24|5, ringWord(data, 0))
	assert.Equal(t, 42|shmlog.BackendMarker, ringWord(data, 1))
	assert.Equal(t, "hello\x00\x00\x00", string(data[offRing+8:offRing+16]))
	assert.Equal(t, endMarkerWord, ringWord(data, 4))
	assert.Equal(t, 4, w.Offset())
}

func Test_Writer_Append_Returns_ErrInvalidInput_When_Record_Invalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		tag     shmlog.Tag
		payload []byte
	}{
		{name: "BogusTag", tag: shmlog.TagBogus, payload: []byte("x")},
		{name: "ReservedTag", tag: shmlog.TagReserved, payload: []byte("x")},
		{name: "BatchTag", tag: shmlog.TagBatch, payload: []byte("x")},
		{name: "PayloadTooLarge", tag: 1, payload: make([]byte, shmlog.MaxPayload+1)},
		{name: "LargerThanSegment", tag: 1, payload: make([]byte, 64*4)},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			chunk, w := newLog(t, testRingWords, shmlog.WriterOptions{})

			err := w.Append(testCase.tag, 1, testCase.payload)
			require.ErrorIs(t, err, shmlog.ErrInvalidInput)

			assert.Equal(t, 0, w.Offset(), "nothing written")
			assert.Equal(t, endMarkerWord, ringWord(chunk.data, 0))
		})
	}
}

func Test_Writer_Records_Segment_Offsets_When_Crossing_Boundaries(t *testing.T) {
	t.Parallel()

	chunk, w := newLog(t, testRingWords, shmlog.WriterOptions{})

	// 4-word records: 16 per segment.
	appendN(t, w, 0, 17)

	assert.Equal(t, 1, w.Segment())
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(chunk.data[offSegment:]))
	assert.Equal(t, int64(64), segmentOffset(chunk.data, 1))
	assert.Equal(t, int64(-1), segmentOffset(chunk.data, 2))
}

func Test_Writer_Wraps_And_Bumps_Generation_When_Ring_Full(t *testing.T) {
	t.Parallel()

	chunk, w := newLog(t, testRingWords, shmlog.WriterOptions{Generation: math.MaxUint32})

	// 128 records fill the ring exactly; the trailing marker forces a wrap.
	appendN(t, w, 0, 128)

	assert.Equal(t, uint32(1), w.Generation(), "generation skips zero")
	assert.Equal(t, 4, w.Offset())
	assert.Equal(t, 0, w.Segment())
	assert.Equal(t, wrapMarkerWord, ringWord(chunk.data, 127*4))
	assert.Equal(t, endMarkerWord, ringWord(chunk.data, 4))
}
