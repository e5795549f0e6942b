package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmlog/internal/config"
	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

// DumpCmd returns the dump command.
func DumpCmd(cfg *config.Config) *Command {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.StringP("write", "w", "", "Snapshot `file` to write (.zst compresses)")
	fs.Bool("tail", false, "Start at the live edge instead of a safe point in the past")

	return &Command{
		Flags: fs,
		Usage: "dump -w <file> [flags]",
		Short: "Write the live log to a snapshot file",
		Long: `Read the live log until no more records are available and write them to
a snapshot file readable with "cat -r". The file is replaced atomically.
A file name ending in .zst is written zstd-compressed.`,
		Examples: []string{
			"dump -w snapshot.log",
			"dump --tail -w recent.log.zst",
		},
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			path, _ := fs.GetString("write")
			if path == "" {
				return errors.New("--write is required")
			}

			tail, _ := fs.GetBool("tail")

			return execDump(ctx, o, cfg, path, tail)
		},
	}
}

func execDump(ctx context.Context, o *IO, cfg *config.Config, path string, tail bool) (err error) {
	src, err := openLive(cfg, tail)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, src.Close()) }()

	var (
		recs    []shmlog.Record
		pending shmlog.Record
	)

	// Counters are only served by cat.
	f := &follower{
		src:  src,
		poll: cfg.Poll,
		once: true,
		take: func(rec shmlog.Record) error {
			pending = shmlog.Record{Tag: rec.Tag, ID: rec.ID, Payload: bytes.Clone(rec.Payload)}

			return nil
		},
		keep: func() { recs = append(recs, pending) },
	}

	err = f.run(ctx, o)
	if err != nil {
		return err
	}

	target := resolvePath(cfg, path)

	if strings.HasSuffix(path, ".zst") {
		err = writeCompressed(target, recs)
	} else {
		err = shmlog.WriteFile(target, recs)
	}

	if err != nil {
		return err
	}

	o.Printf("wrote %d records to %s\n", len(recs), path)

	return nil
}

// writeCompressed writes recs as a zstd-compressed snapshot, replacing path
// atomically.
func writeCompressed(path string, recs []shmlog.Record) error {
	var buf bytes.Buffer

	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	fw := shmlog.NewFileWriter(enc)

	err = fw.Start()
	if err == nil {
		for _, rec := range recs {
			err = fw.Write(rec)
			if err != nil {
				break
			}
		}
	}

	closeErr := enc.Close()
	if err != nil {
		return err
	}

	if closeErr != nil {
		return fmt.Errorf("zstd writer: %w", closeErr)
	}

	err = atomic.WriteFile(path, &buf)
	if err != nil {
		return fmt.Errorf("write log file: %w", err)
	}

	return nil
}
