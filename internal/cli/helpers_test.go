package cli_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/shmlog/internal/cli"
	"github.com/calvinalkan/shmlog/pkg/shm"
	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

const testRingWords = shmlog.Segments * 64

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// publish creates the default log chunk under c.ChunkDir() and writes n
// records "rec-<i>" with tag 1+i and client ident i. The chunk stays
// published for the rest of the test.
func publish(t *testing.T, c *cli.CLI, n int) *shm.Segment {
	t.Helper()

	seg, err := shm.Create(c.ChunkDir(), shmlog.DefaultClass, shmlog.RegionSize(testRingWords))
	require.NoError(t, err)

	t.Cleanup(func() { _ = seg.Close() })

	w, err := shmlog.NewWriter(seg.Bytes(), shmlog.WriterOptions{})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		require.NoError(t, w.Append(shmlog.Tag(1+i), uint32(i)|shmlog.ClientMarker, fmt.Appendf(nil, "rec-%d", i)))
	}

	return seg
}

// wantLines returns the cat output for records from..to-1 written by publish.
func wantLines(from, to int) string {
	var b strings.Builder

	for i := from; i < to; i++ {
		fmt.Fprintf(&b, "%d %d c rec-%d\n", i, 1+i, i)
	}

	return b.String()
}
