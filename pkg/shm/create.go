package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"

	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

// Segment is a writable mapping of a chunk, owned by the producer.
type Segment struct {
	data    []byte
	path    string
	pidPath string
}

// Create publishes a new chunk of size bytes for class in dir and maps it
// read-write. The directory is created if needed.
//
// The chunk is built in a temporary file and renamed into place, so readers
// of a previous chunk observe it as replaced. The caller's process ID is
// written to the directory's pid file.
func Create(dir, class string, size int) (*Segment, error) {
	err := validateClass(class)
	if err != nil {
		return nil, err
	}

	if size <= 0 {
		return nil, fmt.Errorf("chunk size %d must be positive: %w", size, shmlog.ErrInvalidInput)
	}

	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create chunk directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+class+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create chunk: %w", err)
	}

	tmpPath := tmp.Name()

	data, err := mapNew(tmp, size)

	closeErr := tmp.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("close chunk: %w", closeErr)
	}

	if err != nil {
		if data != nil {
			_ = unix.Munmap(data)
		}

		_ = os.Remove(tmpPath)

		return nil, err
	}

	path := filepath.Join(dir, class)

	err = os.Rename(tmpPath, path)
	if err != nil {
		_ = unix.Munmap(data)
		_ = os.Remove(tmpPath)

		return nil, fmt.Errorf("publish chunk: %w", err)
	}

	pidPath := filepath.Join(dir, PIDFile)

	err = atomic.WriteFile(pidPath, strings.NewReader(strconv.Itoa(os.Getpid())+"\n"))
	if err != nil {
		_ = unix.Munmap(data)

		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return &Segment{data: data, path: path, pidPath: pidPath}, nil
}

func mapNew(f *os.File, size int) ([]byte, error) {
	err := f.Truncate(int64(size))
	if err != nil {
		return nil, fmt.Errorf("size chunk: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap chunk: %w", err)
	}

	return data, nil
}

// Bytes returns the writable mapping.
func (s *Segment) Bytes() []byte {
	return s.data
}

// Path returns the published chunk path.
func (s *Segment) Path() string {
	return s.path
}

// Close unmaps the chunk and removes the pid file, so readers observe the
// producer as gone. The chunk file itself stays for late readers.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}

	var errs []error

	err := unix.Munmap(s.data)
	if err != nil {
		errs = append(errs, fmt.Errorf("munmap chunk: %w", err))
	}

	s.data = nil

	err = os.Remove(s.pidPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove pid file: %w", err))
	}

	return errors.Join(errs...)
}
