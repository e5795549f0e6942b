package shmlog_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

func Test_LiveCursor_Check_Classifies_Position_When_Segment_And_Sequence_Differ(t *testing.T) {
	t.Parallel()

	const (
		U = shmlog.Unsafe
		W = shmlog.Warning
		S = shmlog.Safe
	)

	// want[segmentDiff][seqDiff]
	want := [shmlog.Segments][3]shmlog.Safety{
		0: {S, U, U},
		1: {U, U, U},
		2: {U, U, U},
		3: {W, W, U},
		4: {W, W, U},
		5: {S, S, U},
		6: {S, S, U},
		7: {S, S, U},
	}

	const gen = 100

	segSize := testRingWords / shmlog.Segments

	for producerSegment := 0; producerSegment < shmlog.Segments; producerSegment++ {
		for segDiff := 0; segDiff < shmlog.Segments; segDiff++ {
			for seqDiff := 0; seqDiff < 3; seqDiff++ {
				producerSegment, segDiff, seqDiff := producerSegment, segDiff, seqDiff
				name := fmt.Sprintf("producer=%d/segdiff=%d/seqdiff=%d", producerSegment, segDiff, seqDiff)

				t.Run(name, func(t *testing.T) {
					t.Parallel()

					chunk, _ := newLog(t, testRingWords, shmlog.WriterOptions{})

					cur, err := shmlog.NewLiveCursor(chunk, false)
					require.NoError(t, err)

					setHeader(chunk.data, gen, producerSegment)

					readerSegment := (producerSegment + segDiff) % shmlog.Segments
					pos := shmlog.Position{
						Offset:     readerSegment*segSize + segSize/2,
						Generation: gen - uint32(seqDiff),
					}

					got, err := cur.Check(pos)
					require.NoError(t, err)
					assert.Equal(t, want[segDiff][seqDiff], got)
				})
			}
		}
	}
}

func Test_LiveCursor_Check_Skips_Zero_When_Generation_Wrapped(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		current uint32
		want    shmlog.Safety
	}{
		// 1 - MaxUint32 is 2 in uint32 arithmetic; skipping zero makes it 1.
		{name: "OneWrapAhead", current: 1, want: shmlog.Safe},
		{name: "TwoWrapsAhead", current: 2, want: shmlog.Unsafe},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			chunk, _ := newLog(t, testRingWords, shmlog.WriterOptions{})

			cur, err := shmlog.NewLiveCursor(chunk, false)
			require.NoError(t, err)

			setHeader(chunk.data, testCase.current, 0)

			// Five segments ahead of the producer.
			pos := shmlog.Position{Offset: 5 * 64, Generation: math.MaxUint32}

			got, err := cur.Check(pos)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, got)
		})
	}
}

func Test_LiveCursor_Check_Clamps_To_Last_Segment_When_Ring_Not_Divisible(t *testing.T) {
	t.Parallel()

	ringWords := testRingWords + 5
	chunk, _ := newLog(t, ringWords, shmlog.WriterOptions{})

	cur, err := shmlog.NewLiveCursor(chunk, false)
	require.NoError(t, err)

	setHeader(chunk.data, 1, shmlog.Segments-1)

	got, err := cur.Check(shmlog.Position{Offset: ringWords - 1, Generation: 1})
	require.NoError(t, err)
	assert.Equal(t, shmlog.Safe, got, "tail words belong to the producer's last segment")
}

func Test_LiveCursor_Check_Returns_Safe_When_Position_Is_Null(t *testing.T) {
	t.Parallel()

	chunk, _ := newLog(t, testRingWords, shmlog.WriterOptions{})

	cur, err := shmlog.NewLiveCursor(chunk, false)
	require.NoError(t, err)

	got, err := cur.Check(shmlog.Position{})
	require.NoError(t, err)
	assert.Equal(t, shmlog.Safe, got)
}

func Test_LiveCursor_Check_Returns_ErrInvalidInput_When_Offset_Outside_Ring(t *testing.T) {
	t.Parallel()

	chunk, _ := newLog(t, testRingWords, shmlog.WriterOptions{})

	cur, err := shmlog.NewLiveCursor(chunk, false)
	require.NoError(t, err)

	for _, off := range []int{-1, testRingWords, testRingWords * 2} {
		_, err := cur.Check(shmlog.Position{Offset: off, Generation: 1})
		require.ErrorIs(t, err, shmlog.ErrInvalidInput, "offset %d", off)
	}
}

func Test_Safety_String_Names_Levels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unsafe", shmlog.Unsafe.String())
	assert.Equal(t, "warning", shmlog.Warning.String())
	assert.Equal(t, "safe", shmlog.Safe.String())
	assert.Equal(t, "Safety(7)", shmlog.Safety(7).String())
	assert.Equal(t, "12@3", shmlog.Position{Offset: 12, Generation: 3}.String())
}
