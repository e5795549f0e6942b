package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/calvinalkan/shmlog/internal/config"
	"github.com/calvinalkan/shmlog/pkg/shm"
	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// source is an open cursor plus whatever must be released after it.
type source struct {
	cur   shmlog.Cursor
	label string // metrics label

	// release runs in reverse order after the cursor is closed.
	release []func() error
}

func (s *source) Close() error {
	errs := []error{shmlog.Close(s.cur)}

	for i := len(s.release) - 1; i >= 0; i-- {
		errs = append(errs, s.release[i]())
	}

	return errors.Join(errs...)
}

// openLive maps the configured chunk and opens a live cursor over it.
func openLive(cfg *config.Config, tail bool) (*source, error) {
	dir, err := shm.Open(cfg.DirAbs)
	if err != nil {
		return nil, fmt.Errorf("%w (producer not started?)", err)
	}

	cur, err := shmlog.OpenLive(dir, shmlog.LiveOptions{Class: cfg.Class, Tail: tail})
	if err != nil {
		_ = dir.Close()

		return nil, err
	}

	return &source{cur: cur, label: sourceLive, release: []func() error{dir.Close}}, nil
}

// openSnapshot opens a snapshot file, or stdin for "-". Streams starting with
// a zstd frame are decompressed.
func openSnapshot(path string, stdin io.Reader) (*source, error) {
	src := &source{label: sourceSnapshot}

	r := stdin

	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // path is the user's -r argument
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}

		r = f
		src.release = append(src.release, f.Close)
	}

	br := bufio.NewReader(r)

	magic, _ := br.Peek(len(zstdMagic))
	if bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			_ = src.Close()

			return nil, fmt.Errorf("zstd reader: %w", err)
		}

		src.release = append(src.release, func() error {
			dec.Close()

			return nil
		})
		r = dec
	} else {
		r = br
	}

	cur, err := shmlog.NewSnapshotCursor(r)
	if err != nil {
		_ = src.Close()

		return nil, fmt.Errorf("%s: %w", path, err)
	}

	src.cur = cur

	return src, nil
}

// formatRecord renders a record as "<ident> <tag> <side> <payload>", where
// side is c (client), b (backend) or -.
func formatRecord(rec shmlog.Record) string {
	side := "-"

	switch {
	case rec.Client():
		side = "c"
	case rec.Backend():
		side = "b"
	}

	return strconv.FormatUint(uint64(rec.Ident()), 10) + " " +
		strconv.Itoa(int(rec.Tag)) + " " + side + " " + string(rec.Payload)
}

// resolvePath makes a relative file argument relative to the effective
// working directory (-C).
func resolvePath(cfg *config.Config, path string) string {
	if path == "-" || filepath.IsAbs(path) || cfg.EffectiveCwd == "" {
		return path
	}

	return filepath.Join(cfg.EffectiveCwd, path)
}
