package cli

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Shell_Runs_Commands_Against_One_Open_Store(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	input := "add 'shell note' -t repl\n" +
		"# comment lines are skipped\n" +
		"\n" +
		"count -t repl\n" +
		"bogus\n" +
		"exit\n" +
		"count\n"

	stdout, stderr, code := c.RunWithInput(input, "shell")
	if code != 0 {
		t.Fatalf("code=%d, stderr=%s", code, stderr)
	}

	AssertContains(t, stdout, "1\n")
	AssertContains(t, stderr, "unknown command: bogus")

	if got := c.MustRun("count", "-t", "repl"); got != "1" {
		t.Fatalf("count=%q, want=1", got)
	}

	AssertContains(t, c.ReadFile(".recdb/notes.json"), `"title": "shell note"`)
}

func Test_Shell_Resets_Flags_Between_Lines(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.MustRun("add", "a", "-t", "one")

	stdout, stderr, code := c.RunWithInput("count -t one\ncount\n", "shell")
	if code != 0 {
		t.Fatalf("code=%d, stderr=%s", code, stderr)
	}

	if diff := cmp.Diff("1\n2\n", stdout); diff != "" {
		t.Fatalf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func Test_SplitArgs_Handles_Quotes_And_Escapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want []string
	}{
		{line: "add hello world", want: []string{"add", "hello", "world"}},
		{line: `add "hello world" -b 'it''s'`, want: []string{"add", "hello world", "-b", "its"}},
		{line: `edit X --body "say \"hi\""`, want: []string{"edit", "X", "--body", `say "hi"`}},
		{line: `add a\ b`, want: []string{"add", "a b"}},
		{line: `add ''`, want: []string{"add", ""}},
		{line: "  ls\t-t  work ", want: []string{"ls", "-t", "work"}},
	}

	for _, tt := range tests {
		got, err := splitArgs(tt.line)
		if err != nil {
			t.Fatalf("splitArgs(%q) error: %v", tt.line, err)
		}

		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("splitArgs(%q) mismatch (-want +got):\n%s", tt.line, diff)
		}
	}
}

func Test_SplitArgs_Fails_When_Quote_Is_Unterminated(t *testing.T) {
	t.Parallel()

	for _, line := range []string{`add "open`, `add 'open`, `add trailing\`} {
		_, err := splitArgs(line)
		if err == nil {
			t.Errorf("splitArgs(%q) should fail", line)
		}
	}
}

func Test_CompleteCommand_Matches_Prefix(t *testing.T) {
	t.Parallel()

	got := completeCommand(commands(&app{}), "e")

	if diff := cmp.Diff([]string{"edit", "export", "exit"}, got); diff != "" {
		t.Fatalf("completions mismatch (-want +got):\n%s", diff)
	}
}
