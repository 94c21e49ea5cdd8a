package notes

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Note is a single stored note.
type Note struct {
	NoteID  string    `json:"id"             yaml:"id"             msgpack:"id"`
	Title   string    `json:"title"          yaml:"title"          msgpack:"title"`
	Body    string    `json:"body,omitempty" yaml:"body,omitempty" msgpack:"body,omitempty"`
	Tags    []string  `json:"tags,omitempty" yaml:"tags,omitempty" msgpack:"tags,omitempty"`
	Created time.Time `json:"created"        yaml:"created"        msgpack:"created"`
	Updated time.Time `json:"updated"        yaml:"updated"        msgpack:"updated"`
}

// ID implements walstore.Record.
func (n *Note) ID() string { return n.NoteID }

// HasTag reports whether n carries tag.
func (n *Note) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag)
}

// Clone returns a deep copy.
func (n *Note) Clone() *Note {
	c := *n
	c.Tags = slices.Clone(n.Tags)

	return &c
}

// NormalizeTags lowercases, trims, dedupes and sorts tags. Tags may not
// contain whitespace or commas.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}

		if strings.ContainsAny(tag, " \t\n,") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTag, tag)
		}

		out = append(out, tag)
	}

	slices.Sort(out)
	out = slices.Compact(out)

	if len(out) == 0 {
		return nil, nil
	}

	return out, nil
}
