package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/shmlog/internal/config"
	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

// ShellCmd returns the shell command.
func ShellCmd(cfg *config.Config, env map[string]string) *Command {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	fs.StringP("read", "r", "", "Explore a snapshot `file` instead of the live log")
	fs.Bool("tail", false, "Start at the live edge instead of a safe point in the past")

	return &Command{
		Flags: fs,
		Usage: "shell [flags]",
		Short: "Step through the log interactively",
		Long: `Open a cursor and drive it one command at a time.
Type 'help' in the shell for the command list.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			read, _ := fs.GetString("read")
			tail, _ := fs.GetBool("tail")

			// Commands are read from stdin.
			if read == "-" {
				return errors.New("shell cannot read a snapshot from stdin; pass a file")
			}

			var (
				src *source
				err error
			)

			if read != "" {
				src, err = openSnapshot(resolvePath(cfg, read), o.Stdin())
			} else {
				src, err = openLive(cfg, tail)
			}

			if err != nil {
				return err
			}

			r := &repl{io: o, src: src, history: historyFile(env)}

			return errors.Join(r.run(), src.Close())
		},
	}
}

// prompter reads one command line at a time.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// scanPrompter reads commands from a non-terminal input.
type scanPrompter struct {
	sc *bufio.Scanner
}

func (p *scanPrompter) Prompt(string) (string, error) {
	if !p.sc.Scan() {
		err := p.sc.Err()
		if err == nil {
			err = io.EOF
		}

		return "", err
	}

	return p.sc.Text(), nil
}

func (p *scanPrompter) AppendHistory(string) {}

func (p *scanPrompter) Close() error { return nil }

// repl is the interactive command loop.
type repl struct {
	io      *IO
	src     *source
	history string
	line    prompter
	last    shmlog.Record
}

func historyFile(env map[string]string) string {
	home := env["HOME"]
	if home == "" {
		return ""
	}

	return filepath.Join(home, ".shmlog_history")
}

// newPrompter uses liner on the process terminal and a line scanner for any
// other input.
func (r *repl) newPrompter() prompter {
	if f, ok := r.io.Stdin().(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		l := liner.NewLiner()
		l.SetCtrlCAborts(true)
		l.SetCompleter(completeCommand)

		if r.history != "" {
			if hf, err := os.Open(r.history); err == nil {
				_, _ = l.ReadHistory(hf)
				_ = hf.Close()
			}
		}

		return l
	}

	in := r.io.Stdin()
	if in == nil {
		in = strings.NewReader("")
	}

	r.history = ""

	return &scanPrompter{sc: bufio.NewScanner(in)}
}

func (r *repl) run() error {
	r.line = r.newPrompter()

	defer func() {
		r.saveHistory()
		_ = r.line.Close()
	}()

	for {
		line, err := r.line.Prompt("shmlog> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.line.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			r.printHelp()
		case "next", "n":
			r.cmdNext(args)
		case "reset":
			r.report(shmlog.Reset(r.src.cur))
		case "skip":
			r.cmdSkip(args)
		case "check":
			r.cmdCheck(args)
		case "pos":
			r.cmdPos()
		default:
			r.io.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (r *repl) saveHistory() {
	l, ok := r.line.(*liner.State)
	if !ok || r.history == "" {
		return
	}

	f, err := os.Create(r.history)
	if err != nil {
		return
	}

	_, _ = l.WriteHistory(f)
	_ = f.Close()
}

var shellCommands = []string{"next", "reset", "skip", "check", "pos", "help", "quit", "exit"}

func completeCommand(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range shellCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *repl) printHelp() {
	r.io.Println("Commands:")
	r.io.Println("  next [n]          Read and print the next n records (default 1)")
	r.io.Println("  reset             Move to a safe starting point")
	r.io.Println("  skip <words>      Move forward without decoding")
	r.io.Println("  check [off gen]   Classify a position (default: last record)")
	r.io.Println("  pos               Show the next read position")
	r.io.Println("  help              Show this help")
	r.io.Println("  quit              Exit")
}

// report prints the outcome of a cursor operation.
func (r *repl) report(err error) {
	switch {
	case err == nil:
		r.io.Println("ok")
	case errors.Is(err, shmlog.ErrUnsupported):
		r.io.Println("unsupported")
	default:
		r.io.Println("error:", err)
	}
}

func (r *repl) cmdNext(args []string) {
	n := 1

	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			r.io.Println("usage: next [n]")

			return
		}

		n = v
	}

	for iter := 0; iter < n; iter++ {
		err := shmlog.Next(r.src.cur)

		switch {
		case err == nil:
			r.last = r.src.cur.Record()
			r.io.Println(formatRecord(r.last))
		case errors.Is(err, io.EOF):
			r.io.Println("end of log")

			return
		case errors.Is(err, shmlog.ErrNoMoreData):
			r.io.Println("no more data")

			return
		default:
			r.io.Println("error:", err)

			return
		}
	}
}

func (r *repl) cmdSkip(args []string) {
	if len(args) != 1 {
		r.io.Println("usage: skip <words>")

		return
	}

	words, err := strconv.Atoi(args[0])
	if err != nil {
		r.io.Println("usage: skip <words>")

		return
	}

	r.report(shmlog.Skip(r.src.cur, words))
}

func (r *repl) cmdCheck(args []string) {
	pos := r.last.Pos

	switch len(args) {
	case 0:
	case 2:
		off, offErr := strconv.Atoi(args[0])
		gen, genErr := strconv.ParseUint(args[1], 10, 32)

		if offErr != nil || genErr != nil {
			r.io.Println("usage: check [off gen]")

			return
		}

		pos = shmlog.Position{Offset: off, Generation: uint32(gen)}
	default:
		r.io.Println("usage: check [off gen]")

		return
	}

	safety, err := shmlog.Check(r.src.cur, pos)
	if err != nil {
		r.report(err)

		return
	}

	r.io.Println(pos.String(), safety)
}

func (r *repl) cmdPos() {
	p, ok := r.src.cur.(interface{ Position() shmlog.Position })
	if !ok {
		r.io.Println("unsupported")

		return
	}

	r.io.Println(p.Position().String())
}
