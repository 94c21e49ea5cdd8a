package walstore_test

import (
	"errors"
	"testing"

	"github.com/calvinalkan/recdb/pkg/walstore"
)

func Test_PerformWithoutAutoSave_Writes_Once_And_Skips_WAL(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	s := e.open()

	err := s.PerformWithoutAutoSave(func() error {
		if s.IsAutoSaveEnabled() {
			t.Error("auto-save enabled inside scope")
		}

		for _, key := range []string{"a", "b", "c"} {
			if err := s.Create(itm(key, "v")); err != nil {
				return err
			}
		}

		if _, err := s.Delete("b"); err != nil {
			return err
		}

		if e.exists(snapshotPath) {
			t.Error("snapshot written inside scope")
		}

		return nil
	})
	if err != nil {
		t.Fatalf("PerformWithoutAutoSave: %v", err)
	}

	if e.exists(walPath) {
		t.Fatal("wal written inside scope")
	}

	if got := e.sched.Scheduled(); got != 0 {
		t.Fatalf("scheduled=%d, want=0", got)
	}

	if got := s.Stats().WriteCount; got != 1 {
		t.Fatalf("writes=%d, want=1", got)
	}

	if got := len(e.snapshot()); got != 2 {
		t.Fatalf("snapshot records=%d, want=2", got)
	}

	if s.HasPendingChanges() || !s.IsAutoSaveEnabled() {
		t.Fatal("store not restored after scope")
	}
}

func Test_AutoSave_Writes_Only_When_Outermost_Scope_Ends(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	s := e.open()

	outer := s.BeginWithoutAutoSave()
	inner := s.BeginWithoutAutoSave()

	if err := s.Create(itm("a", "1")); err != nil {
		t.Fatal(err)
	}

	if err := inner.End(); err != nil {
		t.Fatalf("inner End: %v", err)
	}

	if s.IsAutoSaveEnabled() || e.exists(snapshotPath) {
		t.Fatal("inner scope end re-enabled auto-save or wrote")
	}

	if err := outer.End(); err != nil {
		t.Fatalf("outer End: %v", err)
	}

	if !e.exists(snapshotPath) {
		t.Fatal("outer scope end did not write")
	}

	// End is idempotent.
	if err := outer.End(); err != nil {
		t.Fatalf("second End: %v", err)
	}

	if got := s.Stats().WriteCount; got != 1 {
		t.Fatalf("writes=%d, want=1", got)
	}
}

func Test_AutoSave_Does_Not_Write_When_Nothing_Changed(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	s := e.open()

	if err := s.BeginWithoutAutoSave().End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	if got := s.Stats().WriteCount; got != 0 {
		t.Fatalf("writes=%d, want=0", got)
	}
}

func Test_AutoSave_Panics_When_Scopes_End_Out_Of_Order(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	s := e.open()

	outer := s.BeginWithoutAutoSave()
	_ = s.BeginWithoutAutoSave()

	defer func() {
		if recover() == nil {
			t.Fatal("out-of-order End did not panic")
		}
	}()

	_ = outer.End()
}

func Test_PerformWithoutAutoSave_Returns_Callback_Error_And_Still_Flushes(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	s := e.open()

	boom := errors.New("boom")

	err := s.PerformWithoutAutoSave(func() error {
		if err := s.Create(itm("a", "1")); err != nil {
			return err
		}

		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want=%v", err, boom)
	}

	if !e.exists(snapshotPath) {
		t.Fatal("changes made before the error were not flushed")
	}
}

func Test_AutoSave_Scope_End_Deletes_WAL_So_Restart_Keeps_Later_Updates(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	s := e.open()

	if err := s.Create(itm("x", "v1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !e.exists(walPath) {
		t.Fatal("create did not append to the WAL")
	}

	err := s.PerformWithoutAutoSave(func() error {
		change, err := s.Update(itm("x", "v2"))
		if change != walstore.Changed {
			t.Errorf("change=%v, want=%v", change, walstore.Changed)
		}

		return err
	})
	if err != nil {
		t.Fatalf("PerformWithoutAutoSave: %v", err)
	}

	if e.exists(walPath) {
		t.Fatal("wal kept after the scope wrote the snapshot")
	}

	// Crash: the deferred job never runs.
	e.restart()

	got, ok := e.open().Get("x")
	if !ok || got.Value != "v2" {
		t.Fatalf("after restart x=%+v (found=%v), want value v2", got, ok)
	}
}
