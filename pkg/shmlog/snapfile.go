package shmlog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/natefinch/atomic"
)

// FileWriter encodes records into the snapshot stream format read by
// [SnapshotCursor].
//
// The file identifier is written before the first record. Errors are sticky:
// after a failed write every later call returns the same error.
type FileWriter struct {
	w       io.Writer
	buf     []byte
	started bool
	err     error
}

// NewFileWriter returns a FileWriter writing to w.
func NewFileWriter(w io.Writer) *FileWriter {
	return &FileWriter{w: w}
}

// Write appends one record. Returns [ErrInvalidInput] for reserved tags or
// oversized payloads.
func (fw *FileWriter) Write(rec Record) error {
	err := validateUserRecord(rec.Tag, rec.Payload)
	if err != nil {
		return err
	}

	fw.buf = appendRecord(fw.buf[:0], rec.Tag, rec.ID, rec.Payload)

	return fw.flush()
}

// WriteBatch writes a batch framing record for id followed by recs. The
// framing record carries the word count of the records it announces.
func (fw *FileWriter) WriteBatch(id uint32, recs []Record) error {
	words := 0

	for _, rec := range recs {
		err := validateUserRecord(rec.Tag, rec.Payload)
		if err != nil {
			return err
		}

		words += headerWords + payloadWords(len(rec.Payload))
	}

	fw.buf = appendRecord(fw.buf[:0], TagBatch, id, binary.LittleEndian.AppendUint32(nil, uint32(words)))

	for _, rec := range recs {
		fw.buf = appendRecord(fw.buf, rec.Tag, rec.ID, rec.Payload)
	}

	return fw.flush()
}

// Start writes the file identifier if it has not been written yet. A stream
// with no records is still a valid snapshot.
func (fw *FileWriter) Start() error {
	if fw.err != nil {
		return fw.err
	}

	if fw.started {
		return nil
	}

	_, err := io.WriteString(fw.w, fileID)
	if err != nil {
		fw.err = fmt.Errorf("write file identifier: %w", err)

		return fw.err
	}

	fw.started = true

	return nil
}

func (fw *FileWriter) flush() error {
	err := fw.Start()
	if err != nil {
		return err
	}

	_, err = fw.w.Write(fw.buf)
	if err != nil {
		fw.err = fmt.Errorf("write record: %w", err)

		return fw.err
	}

	return nil
}

// WriteFile writes recs as a snapshot to path, replacing any existing file
// atomically.
func WriteFile(path string, recs []Record) error {
	var buf bytes.Buffer

	fw := NewFileWriter(&buf)

	err := fw.Start()
	if err != nil {
		return err
	}

	for _, rec := range recs {
		err = fw.Write(rec)
		if err != nil {
			return err
		}
	}

	err = atomic.WriteFile(path, &buf)
	if err != nil {
		return fmt.Errorf("write log file: %w", err)
	}

	return nil
}
