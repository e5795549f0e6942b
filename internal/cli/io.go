package cli

import (
	"fmt"
	"io"
)

// IO handles command output and keeps warnings visible in long streams.
type IO struct {
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	warnings []string
	shown    int // warnings already written to errOut
}

// NewIO creates a new IO instance.
func NewIO(in io.Reader, out, errOut io.Writer) *IO {
	return &IO{in: in, out: out, errOut: errOut}
}

// Warn records a warning.
//
// Parameters:
//   - issue: what went wrong
//   - action: what the reader of the output should do about it
//
// A warning is written to stderr before the next stdout line, and all
// warnings are repeated by Finish, so they survive head/tail truncation.
// Any warning makes the exit code 1.
func (o *IO) Warn(issue string, action string) {
	o.warnings = append(o.warnings, fmt.Sprintf("%s: %s", issue, action))
}

// Println writes to stdout after flushing pending warnings.
func (o *IO) Println(a ...any) {
	o.flushWarnings()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout after flushing pending warnings.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarnings()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Stdin returns the command input.
func (o *IO) Stdin() io.Reader {
	return o.in
}

// Stdout returns the command output writer.
func (o *IO) Stdout() io.Writer {
	return o.out
}

// Finish prints warnings to stderr and returns the exit code.
// Returns 1 if any warnings, 0 otherwise.
func (o *IO) Finish() int {
	// Nothing printed since the last warning: show it in "start" position.
	o.flushWarnings()

	if len(o.warnings) == 0 {
		return 0
	}

	// Repeat all at the end.
	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}

	return 1
}

func (o *IO) flushWarnings() {
	for ; o.shown < len(o.warnings); o.shown++ {
		_, _ = fmt.Fprintln(o.errOut, "warning:", o.warnings[o.shown])
	}
}
