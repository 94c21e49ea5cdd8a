package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/notes"
)

var (
	errTitleRequired = errors.New("title is required")
	errIDRequired    = errors.New("note ID is required")
)

// commands returns every command bound to a. The shell calls this per line
// so flag values never leak between invocations.
func commands(a *app) []*Command {
	return []*Command{
		addCmd(a),
		showCmd(a),
		editCmd(a),
		rmCmd(a),
		lsCmd(a),
		countCmd(a),
		tagsCmd(a),
		importCmd(a),
		exportCmd(a),
		flushCmd(a),
		statsCmd(a),
		shellCmd(a),
		printConfigCmd(a),
	}
}

func findCommand(cmds []*Command, name string) *Command {
	for _, c := range cmds {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

func addCmd(a *app) *Command {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	body := fs.StringP("body", "b", "", "Note body")
	tags := fs.StringSliceP("tag", "t", nil, "Tag (repeatable, comma-separated)")

	return &Command{
		Flags: fs,
		Usage: "add <title> [flags]",
		Short: "Add a note, prints its ID",
		Long:  "Add a note. The title is every positional argument joined by spaces.\nPrints the new note ID.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			title := strings.Join(args, " ")
			if strings.TrimSpace(title) == "" {
				return errTitleRequired
			}

			n, err := a.notes.Add(title, *body, *tags)
			if err = persisted(err); err != nil {
				return err
			}

			o.Println(n.NoteID)

			return nil
		},
	}
}

func showCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show", flag.ContinueOnError),
		Usage: "show <id>",
		Short: "Show a note",
		Long:  "Show a note. <id> may be any unique prefix of the note ID.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errIDRequired
			}

			n, err := a.notes.Get(args[0])
			if err != nil {
				return err
			}

			printNote(o, n)

			return nil
		},
	}
}

func printNote(o *IO, n *notes.Note) {
	o.Println("id:", n.NoteID)
	o.Println("title:", n.Title)

	if len(n.Tags) > 0 {
		o.Println("tags:", strings.Join(n.Tags, ", "))
	}

	o.Println("created:", n.Created.Format(time.RFC3339))
	o.Println("updated:", n.Updated.Format(time.RFC3339))

	if n.Body != "" {
		o.Println()
		o.Println(n.Body)
	}
}

func editCmd(a *app) *Command {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	title := fs.String("title", "", "New title")
	body := fs.StringP("body", "b", "", "New body")
	tags := fs.StringSlice("tags", nil, "Replace all tags (comma-separated, empty to clear)")
	addTags := fs.StringSliceP("add-tag", "t", nil, "Add tag (repeatable)")
	rmTags := fs.StringSlice("rm-tag", nil, "Remove tag (repeatable)")

	return &Command{
		Flags: fs,
		Usage: "edit <id> [flags]",
		Short: "Edit a note",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errIDRequired
			}

			var p notes.Patch

			if fs.Changed("title") {
				p.Title = title
			}

			if fs.Changed("body") {
				p.Body = body
			}

			if fs.Changed("tags") {
				p.Tags = tags
			}

			p.AddTags = *addTags
			p.RemoveTags = *rmTags

			n, err := a.notes.Edit(args[0], p)
			if err = persisted(err); err != nil {
				return err
			}

			o.Println(n.NoteID)

			return nil
		},
	}
}

func rmCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage: "rm <id>...",
		Short: "Remove notes",
		Long:  "Remove one or more notes. All removals are written together; if one ID\ndoes not resolve, the notes before it are still removed.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errIDRequired
			}

			var removed []string

			err := a.notes.Batch(func() error {
				for _, id := range args {
					n, err := a.notes.Remove(id)
					if err != nil {
						return err
					}

					removed = append(removed, n.NoteID)
				}

				return nil
			})

			for _, id := range removed {
				o.Println(id)
			}

			return persisted(err)
		},
	}
}

func lsCmd(a *app) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	tag := fs.StringP("tag", "t", "", "Only notes with this tag")
	query := fs.StringP("query", "q", "", "Only notes whose title or body contains this text")
	limit := fs.IntP("limit", "n", 0, "Show at most this many notes (0 = all)")

	return &Command{
		Flags: fs,
		Usage: "ls [flags]",
		Short: "List notes, oldest first",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			list := a.notes.List(notes.Filter{Tag: *tag, Query: *query})
			if *limit > 0 && len(list) > *limit {
				list = list[:*limit]
			}

			for _, n := range list {
				line := fmt.Sprintf("%s  %s  %s", n.NoteID, n.Updated.Format(time.DateOnly), n.Title)
				if len(n.Tags) > 0 {
					line += "  [" + strings.Join(n.Tags, ", ") + "]"
				}

				o.Println(line)
			}

			return nil
		},
	}
}

func countCmd(a *app) *Command {
	fs := flag.NewFlagSet("count", flag.ContinueOnError)
	tag := fs.StringP("tag", "t", "", "Only notes with this tag")
	query := fs.StringP("query", "q", "", "Only notes whose title or body contains this text")

	return &Command{
		Flags: fs,
		Usage: "count [flags]",
		Short: "Count notes",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			o.Println(a.notes.Count(notes.Filter{Tag: *tag, Query: *query}))

			return nil
		},
	}
}

func tagsCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("tags", flag.ContinueOnError),
		Usage: "tags",
		Short: "List tags with note counts",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			for _, tc := range a.notes.Tags() {
				o.Printf("%s\t%d\n", tc.Tag, tc.Count)
			}

			return nil
		},
	}
}
