package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/config"
	"github.com/calvinalkan/recdb/pkg/fs"
)

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. A signal cancels the running command; deferred writes
// are still flushed before Run returns.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	gf := flag.NewFlagSet("recdb", flag.ContinueOnError)
	gf.SetInterspersed(false)
	gf.SetOutput(io.Discard)

	workDir := gf.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := gf.StringP("config", "c", "", "Use specified config `file`")
	dataRoot := gf.String("data-root", "", "Directory holding the snapshot and WAL")
	file := gf.String("file", "", "Snapshot file name below the data root")
	codecName := gf.String("codec", "", "Snapshot codec (json, yaml, msgpack)")
	wait := gf.Duration("waiting-time", 0, "Batching window for deferred writes (0 writes immediately)")
	logLevel := gf.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := gf.String("log-format", "", "Log format (text, json, color)")
	metricsAddr := gf.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	help := gf.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := gf.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, gf)

		return 1
	}

	rest := gf.Args()
	if *help || len(rest) == 0 {
		printUsage(out, gf)

		return 0
	}

	overrides := config.Config{
		DataRoot:    *dataRoot,
		File:        *file,
		Codec:       *codecName,
		LogLevel:    *logLevel,
		LogFormat:   *logFormat,
		MetricsAddr: *metricsAddr,
	}

	if gf.Changed("waiting-time") {
		d := config.Duration(*wait)
		overrides.WaitingTime = &d
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Overrides:       overrides,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	log, err := config.NewLogger(cfg, errOut)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	a := &app{cfg: cfg, log: log, fs: fs.NewReal(), in: in}

	cmd := findCommand(commands(a), rest[0])
	if cmd == nil {
		fprintln(errOut, "error: unknown command:", rest[0])
		printUsage(errOut, gf)

		return 1
	}

	o := NewIO(out, errOut)

	cmdArgs, err := cmd.Parse(rest[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			cmd.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		cmd.PrintHelp(o)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if !cmd.Offline {
		err = a.open(ctx, o)
		if err != nil {
			o.ErrPrintln("error:", err)

			return 1
		}
	}

	err = cmd.Exec(ctx, o, cmdArgs)

	if !cmd.Offline {
		err = errors.Join(err, a.close(ctx))
	}

	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}

// resolvePath makes p absolute relative to cwd.
func resolvePath(cwd, p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(cwd, p)
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, gf *flag.FlagSet) {
	fprintln(w, `recdb - note store with a write-ahead log

Usage: recdb [options] <command> [args]

Options:`)
	fprintln(w, gf.FlagUsages())
	fprintln(w, "Commands:")

	for _, c := range commands(&app{}) {
		fprintln(w, c.HelpLine())
	}

	fprintln(w)
	fprintln(w, "Run 'recdb <command> --help' for command flags.")
}
