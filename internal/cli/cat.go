package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmlog/internal/config"
	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

// CatCmd returns the cat command.
func CatCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("cat", flag.ContinueOnError)
	fs.StringP("read", "r", "", "Read a snapshot `file` instead of the live log (- for stdin)")
	fs.Bool("tail", false, "Start at the live edge instead of a safe point in the past")
	fs.BoolP("once", "d", false, "Stop when the live log has no more records")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on `addr` while reading")

	return &Command{
		Flags: fs,
		Usage: "cat [flags]",
		Short: "Print log records",
		Long: `Print log records, one per line: <ident> <tag> <side> <payload>.

Side is c for client, b for backend records and - otherwise.
Live reading follows the producer until interrupted. When the producer
laps the reader a warning is printed and reading resumes at a safe point.
When the producer is gone a warning is printed and cat exits.`,
		Examples: []string{
			"cat --once",
			"cat --tail --metrics-addr 127.0.0.1:9108",
			"cat -r snapshot.log.zst",
		},
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			read, _ := fs.GetString("read")
			tail, _ := fs.GetBool("tail")
			once, _ := fs.GetBool("once")

			addr, _ := fs.GetString("metrics-addr")
			if addr == "" {
				addr = cfg.MetricsAddr
			}

			reg := prometheus.NewRegistry()
			m := newMetrics(reg)

			if addr != "" {
				bound, stop, err := serveMetrics(ctx, addr, reg)
				if err != nil {
					return err
				}

				defer stop()

				o.ErrPrintln("serving metrics on http://" + bound + "/metrics")
			}

			if read != "" {
				return catSnapshot(o, m, resolvePath(cfg, read))
			}

			return catLive(ctx, o, cfg, m, liveOptions{tail: tail, once: once})
		},
	}
}

func catSnapshot(o *IO, m *metrics, path string) (err error) {
	src, err := openSnapshot(path, o.Stdin())
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, src.Close()) }()

	for {
		nextErr := shmlog.Next(src.cur)
		if errors.Is(nextErr, io.EOF) {
			return nil
		}

		if nextErr != nil {
			return nextErr
		}

		m.record(src.label)
		o.Println(formatRecord(src.cur.Record()))
	}
}

type liveOptions struct {
	tail bool
	once bool
}

func catLive(ctx context.Context, o *IO, cfg *config.Config, m *metrics, opts liveOptions) (err error) {
	src, err := openLive(cfg, opts.tail)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, src.Close()) }()

	var line string

	f := &follower{
		src:  src,
		m:    m,
		poll: cfg.Poll,
		once: opts.once,
		take: func(rec shmlog.Record) error {
			line = formatRecord(rec)

			return nil
		},
		keep: func() { o.Println(line) },
	}

	return f.run(ctx, o)
}

// follower reads a live source until ctx is done, the producer is gone, or,
// with once set, the first empty poll.
//
// Live payloads alias shared memory the producer may overwrite at any time.
// Every record goes through take, which must copy what it needs, and is
// handed to keep only if its position was still safe after the copy. A record
// overwritten during take is dropped and handled like an overrun.
type follower struct {
	src  *source
	m    *metrics // nil counts nothing
	poll time.Duration
	once bool

	take func(shmlog.Record) error
	keep func()
}

func (f *follower) run(ctx context.Context, o *IO) error {
	var timer *time.Timer

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := shmlog.Next(f.src.cur)

		switch {
		case err == nil:
			rec := f.src.cur.Record()

			takeErr := f.take(rec)
			if takeErr != nil {
				return takeErr
			}

			safety, checkErr := shmlog.Check(f.src.cur, rec.Pos)
			if checkErr != nil {
				return checkErr
			}

			if safety == shmlog.Unsafe {
				resetErr := f.overrun(o, "a record was overwritten while being read and was dropped")
				if resetErr != nil {
					return resetErr
				}

				continue
			}

			f.m.record(f.src.label)
			f.keep()

		case errors.Is(err, shmlog.ErrNoMoreData):
			f.m.emptyPoll()

			if f.once {
				return nil
			}

			if timer == nil {
				timer = time.NewTimer(f.poll)
				defer timer.Stop()
			} else {
				timer.Reset(f.poll)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}

		case errors.Is(err, shmlog.ErrOverrun):
			resetErr := f.overrun(o, "records were lost")
			if resetErr != nil {
				return resetErr
			}

		case errors.Is(err, shmlog.ErrAbandoned):
			f.m.abandon()
			o.Warn("producer is gone", "restart the producer and run again")

			return nil

		default:
			return err
		}
	}
}

// overrun warns about lost data and moves the cursor to a safe point.
func (f *follower) overrun(o *IO, lost string) error {
	f.m.overrun()
	o.Warn("log overrun", lost+"; reading resumed at a safe point")

	return shmlog.Reset(f.src.cur)
}
