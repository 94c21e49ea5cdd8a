package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

const (
	shellPrompt      = "recdb> "
	shellHistoryFile = ".shell_history"
)

var errUnterminatedQuote = errors.New("unterminated quote")

func shellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Interactive prompt over one open store",
		Long: "Start an interactive prompt. The store stays open between commands, so\n" +
			"changes are batched by the waiting time and written on exit.\n" +
			"Type 'help' for commands, 'exit' to quit.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return runShell(ctx, a, o)
		},
	}
}

// lineReader is the part of *liner.State the shell needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanReader reads lines from a non-terminal input. No prompt is printed.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	if err := r.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (*scanReader) AppendHistory(string) {}

func (*scanReader) Close() error { return nil }

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)

	return err == nil
}

func runShell(ctx context.Context, a *app, o *IO) error {
	if a.in == nil {
		return errNoInput
	}

	// Commands inside the shell must not read the shell's own input.
	inner := *a
	inner.in = nil

	var r lineReader

	if f, ok := a.in.(*os.File); ok && f == os.Stdin && isTerminal(f) {
		st := liner.NewLiner()
		st.SetCtrlCAborts(true)
		st.SetCompleter(func(line string) []string {
			return completeCommand(commands(&inner), line)
		})

		loadHistory(a, st)
		defer saveHistory(a, st)

		r = st
	} else {
		r = &scanReader{sc: bufio.NewScanner(a.in)}
	}

	defer func() { _ = r.Close() }()

	for ctx.Err() == nil {
		line, err := r.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r.AppendHistory(line)

		args, err := splitArgs(line)
		if err != nil {
			o.ErrPrintln("error:", err)

			continue
		}

		switch args[0] {
		case "exit", "quit", "q":
			return nil
		case "help", "?":
			printShellHelp(o, commands(&inner))

			continue
		}

		// Fresh commands per line so flag values do not carry over.
		cmd := findCommand(commands(&inner), args[0])
		if cmd == nil || cmd.Name() == "shell" {
			o.ErrPrintln("error: unknown command:", args[0], "(type 'help' for commands)")

			continue
		}

		cmd.Run(ctx, o, args[1:])
	}

	return nil
}

func printShellHelp(o *IO, cmds []*Command) {
	o.Println("Commands:")

	for _, c := range cmds {
		if c.Name() == "shell" {
			continue
		}

		o.Println(c.HelpLine())
	}

	o.Println("  help                       Show this help")
	o.Println("  exit / quit / q            Leave the shell")
}

func completeCommand(cmds []*Command, line string) []string {
	var out []string

	for _, c := range cmds {
		if strings.HasPrefix(c.Name(), line) && c.Name() != "shell" {
			out = append(out, c.Name())
		}
	}

	for _, name := range []string{"help", "exit", "quit"} {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}

	return out
}

func historyPath(a *app) string {
	return filepath.Join(a.cfg.DataRootAbs, shellHistoryFile)
}

func loadHistory(a *app, st *liner.State) {
	f, err := a.fs.Open(historyPath(a))
	if err != nil {
		return
	}

	defer func() { _ = f.Close() }()

	_, err = st.ReadHistory(f)
	if err != nil {
		a.log.WithError(err).Debug("failed to read shell history")
	}
}

func saveHistory(a *app, st *liner.State) {
	f, err := a.fs.OpenFile(historyPath(a), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		a.log.WithError(err).Debug("failed to open shell history")

		return
	}

	_, err = st.WriteHistory(f)

	err = errors.Join(err, f.Close())
	if err != nil {
		a.log.WithError(err).Debug("failed to write shell history")
	}
}

// splitArgs splits line into words. Single quotes keep everything literal,
// double quotes allow backslash escapes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)

			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inWord = true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()

				inWord = false
			}
		default:
			cur.WriteRune(r)

			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, errUnterminatedQuote
	}

	if inWord {
		args = append(args, cur.String())
	}

	return args, nil
}
