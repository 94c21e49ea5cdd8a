package walstore_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/calvinalkan/recdb/pkg/codec"
	"github.com/calvinalkan/recdb/pkg/fs"
	"github.com/calvinalkan/recdb/pkg/walstore"
)

const (
	snapshotPath = "/data/items.json"
	walPath      = "/data/items.json.wal"
)

type item struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (i *item) ID() string { return i.Key }

func fixedNow() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
}

type env struct {
	t     *testing.T
	fsys  fs.FS
	sched *walstore.ManualScheduler
	log   *logrus.Logger
	hook  *test.Hook
	obs   *walstore.Observers
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	return &env{
		t:     t,
		fsys:  fs.NewMemory(),
		sched: walstore.NewManualScheduler(),
		log:   logger,
		hook:  hook,
		obs:   &walstore.Observers{},
	}
}

func (e *env) config() walstore.MapConfig[*item] {
	return walstore.MapConfig[*item]{
		Name:        e.t.Name(),
		Filename:    walstore.ConstantFilename("items.json"),
		Access:      walstore.NewDataRoot("/data", e.fsys),
		Codec:       &codec.JSON[*item]{Now: fixedNow},
		Scheduler:   e.sched,
		WaitingTime: time.Second,
		Observers:   e.obs,
		Logger:      e.log,
		Now:         fixedNow,
	}
}

func (e *env) tryOpen(mods ...func(*walstore.MapConfig[*item])) (*walstore.MapStore[*item], error) {
	cfg := e.config()
	for _, mod := range mods {
		mod(&cfg)
	}

	return walstore.OpenMap(context.Background(), cfg)
}

func (e *env) open(mods ...func(*walstore.MapConfig[*item])) *walstore.MapStore[*item] {
	e.t.Helper()

	s, err := e.tryOpen(mods...)
	if err != nil {
		e.t.Fatalf("OpenMap: %v", err)
	}

	return s
}

// restart simulates a new process on the same disk: pending deferred jobs
// of the previous store are dropped.
func (e *env) restart() {
	e.sched = walstore.NewManualScheduler()
}

func (e *env) exists(path string) bool {
	e.t.Helper()

	ok, err := e.fsys.Exists(path)
	if err != nil {
		e.t.Fatalf("Exists(%s): %v", path, err)
	}

	return ok
}

func (e *env) snapshot() []*item {
	e.t.Helper()

	data, err := e.fsys.ReadFile(snapshotPath)
	if err != nil {
		e.t.Fatalf("read snapshot: %v", err)
	}

	recs, err := (&codec.JSON[*item]{}).UnmarshalDocument(data)
	if err != nil {
		e.t.Fatalf("decode snapshot: %v\n%s", err, data)
	}

	return recs
}

func (e *env) writeFile(path string, data []byte) {
	e.t.Helper()

	err := e.fsys.MkdirAll("/data", 0o755)
	if err == nil {
		err = e.fsys.WriteFileAtomic(path, data, 0o644)
	}

	if err != nil {
		e.t.Fatalf("write %s: %v", path, err)
	}
}

func (e *env) loggedAt(level logrus.Level, msg string) bool {
	for _, entry := range e.hook.AllEntries() {
		if entry.Level == level && entry.Message == msg {
			return true
		}
	}

	return false
}

// frame encodes one WAL frame.
func frame(tag string, payloads ...string) []byte {
	var buf bytes.Buffer

	putString := func(s string) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(s)))
		buf.WriteString(s)
	}

	putString(tag)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(payloads)))

	for _, p := range payloads {
		putString(p)
	}

	return buf.Bytes()
}

func itm(key, value string) *item {
	return &item{Key: key, Value: value}
}
