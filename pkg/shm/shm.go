// Package shm maps shared-memory chunks published by a log producer.
//
// A chunk directory (typically under /dev/shm) holds one file per chunk class
// plus the producer's pid file. Readers map chunks read-only with [Dir.Find];
// the producer creates them with [Create].
//
// A producer restart replaces chunk files by rename, so a reader still holding
// the old mapping sees [Chunk.Valid] turn false instead of reading a file that
// changes size underneath it.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

// PIDFile is the name of the file holding the producer's process ID.
const PIDFile = "producer.pid"

var errDirClosed = errors.New("shm: directory closed")

// fileIdentity uniquely identifies a file by device and inode.
type fileIdentity struct {
	dev uint64
	ino uint64
}

// Dir is a chunk directory opened for reading. It implements
// [shmlog.Locator].
//
// Chunks returned by Find stay mapped until the Dir is closed. Close all
// cursors reading them first.
type Dir struct {
	mu     sync.Mutex
	path   string
	chunks []*Chunk
	closed bool
}

var _ shmlog.Locator = (*Dir)(nil)

// Open opens the chunk directory at path.
//
// Returns an error wrapping [shmlog.ErrNotFound] if the directory does not
// exist.
func Open(path string) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("chunk directory %s: %w", path, shmlog.ErrNotFound)
		}

		return nil, fmt.Errorf("stat chunk directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory: %w", path, shmlog.ErrInvalidInput)
	}

	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Find maps the chunk of the given class read-only.
//
// Possible errors:
//   - [shmlog.ErrNotFound]: no chunk file for class
//   - [shmlog.ErrNotInitialized]: the chunk file is still empty
//   - [shmlog.ErrInvalidInput]: class is empty or contains a path separator
//   - syscall errors: open, fstat, mmap
func (d *Dir) Find(class string) (shmlog.Chunk, error) {
	err := validateClass(class)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errDirClosed
	}

	path := filepath.Join(d.path, class)

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("%s: %w", path, shmlog.ErrNotFound)
		}

		return nil, fmt.Errorf("open chunk: %w", err)
	}

	// The mapping outlives the descriptor.
	defer func() { _ = unix.Close(fd) }()

	var stat unix.Stat_t

	err = unix.Fstat(fd, &stat)
	if err != nil {
		return nil, fmt.Errorf("stat chunk: %w", err)
	}

	if stat.Size == 0 {
		return nil, fmt.Errorf("%s is empty: %w", path, shmlog.ErrNotInitialized)
	}

	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap chunk: %w", err)
	}

	c := &Chunk{
		data:     data,
		path:     path,
		pidPath:  filepath.Join(d.path, PIDFile),
		identity: fileIdentity{dev: uint64(stat.Dev), ino: stat.Ino},
	}
	d.chunks = append(d.chunks, c)

	return c, nil
}

// Close unmaps every chunk returned by Find. Close is idempotent.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	d.closed = true

	var errs []error

	for _, c := range d.chunks {
		err := unix.Munmap(c.data)
		if err != nil {
			errs = append(errs, fmt.Errorf("munmap %s: %w", c.path, err))
		}

		c.data = nil
	}

	d.chunks = nil

	return errors.Join(errs...)
}

// Chunk is a read-only mapping of one chunk file. It implements
// [shmlog.Chunk].
type Chunk struct {
	data     []byte
	path     string
	pidPath  string
	identity fileIdentity
}

var _ shmlog.Chunk = (*Chunk)(nil)

// Bytes returns the mapped memory.
func (c *Chunk) Bytes() []byte {
	return c.data
}

// Valid reports whether the chunk path still names the mapped file at its
// mapped size. A producer restart replaces the file, which makes the old
// mapping invalid.
func (c *Chunk) Valid() bool {
	var stat unix.Stat_t

	err := unix.Stat(c.path, &stat)
	if err != nil {
		return false
	}

	id := fileIdentity{dev: uint64(stat.Dev), ino: stat.Ino}

	return id == c.identity && stat.Size >= int64(len(c.data))
}

// Abandoned reports whether the producer process is gone: its pid file is
// missing or unreadable, or no process with that ID exists.
func (c *Chunk) Abandoned() bool {
	pid, err := readPID(c.pidPath)
	if err != nil {
		return true
	}

	return !processAlive(pid)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from the chunk directory
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s: invalid pid %q: %w", path, data, shmlog.ErrBadFormat)
	}

	return pid, nil
}

// processAlive checks pid with signal 0. EPERM means the process exists but
// belongs to another user.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)

	return err == nil || errors.Is(err, unix.EPERM)
}

func validateClass(class string) error {
	if class == "" || class == "." || class == ".." || strings.ContainsRune(class, os.PathSeparator) {
		return fmt.Errorf("invalid chunk class %q: %w", class, shmlog.ErrInvalidInput)
	}

	if class == PIDFile {
		return fmt.Errorf("chunk class %q collides with the pid file: %w", class, shmlog.ErrInvalidInput)
	}

	return nil
}
