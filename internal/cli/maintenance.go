package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/notes"
)

var errNoInput = errors.New("no input: pass a file or pipe JSON on stdin")

func flushCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("flush", flag.ContinueOnError),
		Usage: "flush",
		Short: "Write pending changes now",
		Long:  "Write pending changes to the snapshot now instead of waiting for\nthe batching window. Prints \"written\" or \"clean\".",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			changed, err := a.notes.Flush()
			if err = persisted(err); err != nil {
				return err
			}

			if changed.IsChanged() {
				o.Println("written")
			} else {
				o.Println("clean")
			}

			return nil
		},
	}
}

func statsCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("stats", flag.ContinueOnError),
		Usage: "stats",
		Short: "Show store statistics",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			st := a.notes.Stats()

			o.Println("file=" + a.notes.Filename())
			o.Println("notes=" + fmt.Sprint(a.notes.Count(notes.Filter{})))
			o.Println("pending=" + fmt.Sprint(a.notes.HasPendingChanges()))
			o.Println("waiting_time=" + a.cfg.Wait().String())
			o.Println("scheduled_writes=" + fmt.Sprint(a.sched.Pending()))
			o.Println("reads=" + fmt.Sprint(st.ReadCount))
			o.Println("writes=" + fmt.Sprint(st.WriteCount))
			o.Println("write_failures=" + fmt.Sprint(st.WriteFailures))
			o.Println("wal_frames=" + fmt.Sprint(st.WALFrames))
			o.Println("replayed_records=" + fmt.Sprint(st.ReplayedRecords))

			if !st.LastWrite.IsZero() {
				o.Println("last_write=" + st.LastWrite.UTC().Format(time.RFC3339))
				o.Println("last_write_took=" + st.LastWriteTook.String())
			}

			return nil
		},
	}
}

func importCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("import", flag.ContinueOnError),
		Usage: "import [file]",
		Short: "Import notes from a JSON array",
		Long:  "Import notes from a JSON array read from [file] or stdin. Missing IDs\nand timestamps are filled in. Either every note is imported or none.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			data, err := readInput(a, args)
			if err != nil {
				return err
			}

			var in []*notes.Note

			err = json.Unmarshal(data, &in)
			if err != nil {
				return fmt.Errorf("parse import: %w", err)
			}

			n, err := a.notes.Import(in)
			if err = persisted(err); err != nil {
				return err
			}

			o.Printf("imported %d notes\n", n)

			return nil
		},
	}
}

func readInput(a *app, args []string) ([]byte, error) {
	switch {
	case len(args) > 1:
		return nil, errors.New("import takes at most one file")
	case len(args) == 1 && args[0] != "-":
		return a.fs.ReadFile(resolvePath(a.cfg.EffectiveCwd, args[0]))
	case a.in == nil:
		return nil, errNoInput
	}

	return io.ReadAll(a.in)
}

func exportCmd(a *app) *Command {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	tag := fs.StringP("tag", "t", "", "Only notes with this tag")
	out := fs.StringP("output", "o", "", "Write to this file instead of stdout")

	return &Command{
		Flags: fs,
		Usage: "export [flags]",
		Short: "Export notes as a JSON array",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			list := a.notes.List(notes.Filter{Tag: *tag})
			if list == nil {
				list = []*notes.Note{}
			}

			data, err := json.MarshalIndent(list, "", "  ")
			if err != nil {
				return err
			}

			data = append(data, '\n')

			if *out == "" {
				o.Printf("%s", data)

				return nil
			}

			path := resolvePath(a.cfg.EffectiveCwd, *out)

			err = a.fs.MkdirAll(filepath.Dir(path), 0o755)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			err = a.fs.WriteFileAtomic(path, data, 0o644)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			o.Printf("exported %d notes\n", len(list))

			return nil
		},
	}
}
