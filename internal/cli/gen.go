package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmlog/internal/config"
	"github.com/calvinalkan/shmlog/pkg/shm"
	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

const defaultGenRingWords = 1 << 16

// GenCmd returns the gen command.
func GenCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	fs.Int("count", 100, "Number of records to write (0 writes until interrupted)")
	fs.Int("size", defaultGenRingWords, "Ring size in `words`")
	fs.Duration("interval", 0, "Pause between records")
	fs.Uint32("generation", 1, "Initial generation")
	fs.Bool("wait", false, "Keep the log published until interrupted")

	return &Command{
		Flags: fs,
		Usage: "gen [flags]",
		Short: "Run a reference producer writing synthetic records",
		Long: `Publish a new log chunk in the configured directory and write synthetic
records to it. Readers of a previous chunk see it as replaced.

On exit the pid file is removed, so readers report the producer as gone.`,
		Examples: []string{
			"gen --count 1000",
			"gen --count 0 --interval 10ms",
		},
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			count, _ := fs.GetInt("count")
			size, _ := fs.GetInt("size")
			interval, _ := fs.GetDuration("interval")
			generation, _ := fs.GetUint32("generation")
			wait, _ := fs.GetBool("wait")

			if count < 0 {
				return fmt.Errorf("invalid --count %d: must be >= 0", count)
			}

			return execGen(ctx, o, cfg, genOptions{
				count:      count,
				ringWords:  size,
				interval:   interval,
				generation: generation,
				wait:       wait,
			})
		},
	}
}

type genOptions struct {
	count      int
	ringWords  int
	interval   time.Duration
	generation uint32
	wait       bool
}

func execGen(ctx context.Context, o *IO, cfg *config.Config, opts genOptions) (err error) {
	if opts.ringWords < shmlog.Segments*4 {
		return fmt.Errorf("invalid --size %d: must be at least %d words", opts.ringWords, shmlog.Segments*4)
	}

	seg, err := shm.Create(cfg.DirAbs, cfg.Class, shmlog.RegionSize(opts.ringWords))
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, seg.Close()) }()

	w, err := shmlog.NewWriter(seg.Bytes(), shmlog.WriterOptions{Generation: opts.generation})
	if err != nil {
		return err
	}

	written := 0

	for opts.count == 0 || written < opts.count {
		if ctx.Err() != nil {
			break
		}

		appendErr := w.Append(genTag(written), genID(written), []byte("record "+strconv.Itoa(written)))
		if appendErr != nil {
			return appendErr
		}

		written++

		if opts.interval > 0 && !sleep(ctx, opts.interval) {
			break
		}
	}

	o.Printf("wrote %d records to %s (generation %d)\n", written, seg.Path(), w.Generation())

	if opts.wait {
		<-ctx.Done()
	}

	return nil
}

func genTag(i int) shmlog.Tag {
	return shmlog.Tag(1 + i%16)
}

func genID(i int) uint32 {
	if i%2 == 0 {
		return uint32(i/2) | shmlog.ClientMarker
	}

	return uint32(i/2) | shmlog.BackendMarker
}

// sleep waits for d. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
