package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/recdb/pkg/fs"
)

func Test_Run_Prints_Usage_When_No_Command_Given(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	out := c.MustRun()

	AssertContains(t, out, "Usage: recdb [options] <command> [args]")
	AssertContains(t, out, "add <title> [flags]")
	AssertContains(t, out, "--waiting-time")

	if c.Exists(".recdb") {
		t.Fatal("usage must not create the data root")
	}
}

func Test_Run_Fails_When_Command_Is_Unknown(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	stderr := c.MustFail("frobnicate")

	AssertContains(t, stderr, "unknown command: frobnicate")
}

func Test_Run_Prints_Command_Help_Without_Opening_Store(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	out := c.MustRun("edit", "--help")

	AssertContains(t, out, "Usage: recdb edit <id> [flags]")
	AssertContains(t, out, "--add-tag")

	if c.Exists(".recdb") {
		t.Fatal("command help must not create the data root")
	}
}

func Test_Run_Fails_When_Command_Flag_Is_Unknown(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	_, stderr, code := c.Run("ls", "--bogus")

	if code != 1 {
		t.Fatalf("code=%d, want=1", code)
	}

	AssertContains(t, stderr, "unknown flag: --bogus")
}

func Test_Add_Then_Show_Returns_Note(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	id := c.MustRun("add", "Buy", "milk", "-b", "two litres", "-t", "Home,errand")

	if len(id) != 12 {
		t.Fatalf("id=%q, want 12 chars", id)
	}

	out := c.MustRun("show", strings.ToLower(id[:6]))

	AssertContains(t, out, "id: "+id)
	AssertContains(t, out, "title: Buy milk")
	AssertContains(t, out, "tags: errand, home")
	AssertContains(t, out, "two litres")
}

func Test_Add_Fails_When_Title_Missing(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	stderr := c.MustFail("add", "-b", "body only")

	AssertContains(t, stderr, "title is required")
}

func Test_Add_Writes_Snapshot_And_Removes_WAL_On_Exit(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.MustRun("add", "first")

	snap := c.ReadFile(".recdb/notes.json")

	AssertContains(t, snap, `"comment": "This file was generated automatically - do NOT modify!"`)
	AssertContains(t, snap, `"title": "first"`)
	AssertContains(t, snap, `"title": "Welcome to recdb"`)

	if c.Exists(".recdb/notes.json.wal") {
		t.Fatal("WAL must be deleted after a clean exit")
	}
}

func Test_Add_Writes_Immediately_When_Waiting_Time_Is_Zero(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.MustRun("--waiting-time", "0", "add", "now")

	AssertContains(t, c.ReadFile(".recdb/notes.json"), `"title": "now"`)

	out := c.MustRun("--waiting-time", "0", "stats")
	AssertContains(t, out, "waiting_time=0s")
	AssertContains(t, out, "wal_frames=0")
}

func Test_Edit_Updates_Title_And_Tags(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	id := c.MustRun("add", "draft", "-t", "a,b")

	c.MustRun("edit", id, "--title", "final", "-t", "c", "--rm-tag", "a")

	out := c.MustRun("show", id)
	AssertContains(t, out, "title: final")
	AssertContains(t, out, "tags: b, c")
}

func Test_Edit_Fails_When_Nothing_To_Change(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	id := c.MustRun("add", "x")

	stderr := c.MustFail("edit", id)
	AssertContains(t, stderr, "nothing to edit")
}

func Test_Rm_Removes_All_Given_Notes(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	a := c.MustRun("add", "one")
	b := c.MustRun("add", "two")
	keep := c.MustRun("add", "three")

	out := c.MustRun("rm", a, b)
	if out != a+"\n"+b {
		t.Fatalf("out=%q, want=%q", out, a+"\n"+b)
	}

	ls := c.MustRun("ls")
	AssertContains(t, ls, keep)
	AssertNotContains(t, ls, a)
	AssertNotContains(t, ls, b)
}

func Test_Rm_Fails_When_ID_Is_Unknown(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	stderr := c.MustFail("rm", "ZZZZZZZZZZZZ")

	AssertContains(t, stderr, "note not found")
}

func Test_Ls_Filters_By_Tag_And_Limit(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.MustRun("add", "alpha", "-t", "work")
	c.MustRun("add", "beta", "-t", "work")
	c.MustRun("add", "gamma", "-t", "home")

	out := c.MustRun("ls", "-t", "work")
	AssertContains(t, out, "alpha  [work]")
	AssertContains(t, out, "beta  [work]")
	AssertNotContains(t, out, "gamma")

	if got := c.MustRun("count", "-t", "work"); got != "2" {
		t.Fatalf("count=%q, want=2", got)
	}

	if got := c.MustRun("count"); got != "4" {
		t.Fatalf("count=%q, want=4 (3 notes plus welcome)", got)
	}

	lines := strings.Split(c.MustRun("ls", "-n", "2"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d, want=2", len(lines))
	}
}

func Test_Tags_Lists_Counts(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.MustRun("add", "a", "-t", "work")
	c.MustRun("add", "b", "-t", "work,home")

	out := c.MustRun("tags")
	want := "home\t1\nwelcome\t1\nwork\t2"

	if out != want {
		t.Fatalf("tags=%q, want=%q", out, want)
	}
}

func Test_Flush_Reports_Clean_When_Nothing_Pending(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.MustRun("count")

	if got := c.MustRun("flush"); got != "clean" {
		t.Fatalf("flush=%q, want=clean", got)
	}
}

func Test_Import_From_Stdin_Then_Export(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	input := `[{"title":"imported one","tags":["X"]},{"id":"ABCDEFGHJKMN","title":"imported two"}]`

	stdout, stderr, code := c.RunWithInput(input, "import")
	if code != 0 {
		t.Fatalf("import failed: %s", stderr)
	}

	AssertContains(t, stdout, "imported 2 notes")

	out := c.MustRun("show", "abcdef")
	AssertContains(t, out, "title: imported two")

	exported := c.MustRun("export", "-t", "x")
	AssertContains(t, exported, `"title": "imported one"`)
	AssertNotContains(t, exported, "imported two")

	c.MustRun("export", "-o", "out/all.json")
	AssertContains(t, c.ReadFile("out/all.json"), `"id": "ABCDEFGHJKMN"`)
}

func Test_Import_Rejects_Whole_Batch_When_One_Note_Is_Invalid(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.WriteFile("in.json", `[{"title":"ok"},{"title":"   "}]`)

	stderr := c.MustFail("import", "in.json")
	AssertContains(t, stderr, "note 1: note title is required")

	if got := c.MustRun("count"); got != "1" {
		t.Fatalf("count=%q, want=1", got)
	}
}

func Test_Codec_Flag_Selects_Snapshot_Format(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.MustRun("--codec", "yaml", "add", "in yaml")

	snap := c.ReadFile(".recdb/notes.yaml")
	AssertContains(t, snap, "title: in yaml")

	if c.Exists(".recdb/notes.json") {
		t.Fatal("json snapshot must not exist")
	}
}

func Test_Project_Config_Sets_Data_Root_And_File(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.WriteFile(".recdb.json", `{
		// JSONC comments are allowed
		"data_root": "store",
		"file": "mine.json",
	}`)

	c.MustRun("add", "configured")

	AssertContains(t, c.ReadFile("store/mine.json"), `"title": "configured"`)

	out := c.MustRun("print-config")
	AssertContains(t, out, `"data_root": "store"`)
	AssertContains(t, out, "#   project: "+filepath.Join(c.Dir, ".recdb.json"))
}

func Test_Print_Config_Does_Not_Open_Store(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	out := c.MustRun("print-config")

	AssertContains(t, out, "#   (using defaults only)")
	AssertContains(t, out, `"waiting_time": "10s"`)

	if c.Exists(".recdb") {
		t.Fatal("print-config must not create the data root")
	}
}

func Test_Run_Fails_When_Config_Is_Invalid(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	stderr := c.MustFail("--codec", "xml", "count")

	AssertContains(t, stderr, `codec "xml"`)

	stderr = c.MustFail("-c", "missing.json", "count")
	AssertContains(t, stderr, "config file not found")
}

func Test_Run_Fails_When_Data_Root_Is_Locked(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.MustRun("count")

	lock, err := fs.TryLockFile(filepath.Join(c.DataRoot(), lockFileName))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	stderr := c.MustFail("count")
	AssertContains(t, stderr, "in use by another recdb process")

	err = lock.Close()
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}

	c.MustRun("count")
}

func Test_Stats_Reports_Store_Counters(t *testing.T) {
	t.Parallel()

	c := NewCLI(t)
	c.MustRun("add", "x")

	out := c.MustRun("stats")
	AssertContains(t, out, "file=notes.json")
	AssertContains(t, out, "notes=2")
	AssertContains(t, out, "pending=false")
	AssertContains(t, out, "reads=1")
}
