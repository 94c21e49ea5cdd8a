package config_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/recdb/internal/config"
	"github.com/calvinalkan/recdb/pkg/fs"
)

func writeFile(t *testing.T, fsys fs.FS, path, content string) {
	t.Helper()

	err := fsys.MkdirAll(path[:strings.LastIndex(path, "/")], 0o755)
	if err == nil {
		err = fsys.WriteFileAtomic(path, []byte(content), 0o644)
	}

	if err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func load(t *testing.T, fsys fs.FS, in config.LoadInput) (config.Config, error) {
	t.Helper()

	in.FS = fsys
	in.WorkDirOverride = "/work"

	if in.Env == nil {
		in.Env = map[string]string{"XDG_CONFIG_HOME": "/xdg"}
	}

	return config.Load(in)
}

func dur(d time.Duration) *config.Duration {
	v := config.Duration(d)

	return &v
}

func Test_Load_Returns_Defaults_When_No_Files_Exist(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, fs.NewMemory(), config.LoadInput{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := config.Default()
	want.EffectiveCwd = "/work"
	want.DataRootAbs = "/work/.recdb"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	if cfg.Wait() != 10*time.Second {
		t.Fatalf("wait=%v, want=10s", cfg.Wait())
	}
}

func Test_Load_Applies_Layers_In_Precedence_Order(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMemory()
	writeFile(t, fsys, "/xdg/recdb/config.json", `{
		// global
		"data_root": "/global-root",
		"codec": "yaml",
		"log_level": "debug",
	}`)
	writeFile(t, fsys, "/work/.recdb.json", `{"codec": "msgpack", "waiting_time": "0s"}`)

	cfg, err := load(t, fsys, config.LoadInput{
		Overrides: config.Config{LogFormat: "json"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := config.Config{
		DataRoot:     "/global-root",
		Codec:        "msgpack",
		WaitingTime:  dur(0),
		LogLevel:     "debug",
		LogFormat:    "json",
		EffectiveCwd: "/work",
		DataRootAbs:  "/global-root",
		Sources:      config.Sources{Global: "/xdg/recdb/config.json", Project: "/work/.recdb.json"},
	}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	if cfg.Wait() != 0 {
		t.Fatalf("wait=%v, want=0", cfg.Wait())
	}
}

func Test_Load_Uses_Explicit_Config_Instead_Of_Project_File(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMemory()
	writeFile(t, fsys, "/work/.recdb.json", `{"file": "project.json"}`)
	writeFile(t, fsys, "/work/conf/custom.json", `{"data_root": "data"}`)

	cfg, err := load(t, fsys, config.LoadInput{ConfigPath: "conf/custom.json"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.File != "" {
		t.Fatalf("file=%q, want project file ignored", cfg.File)
	}

	if cfg.DataRootAbs != "/work/data" {
		t.Fatalf("data root=%q, want=/work/data", cfg.DataRootAbs)
	}

	if cfg.Sources.Project != "/work/conf/custom.json" {
		t.Fatalf("project source=%q", cfg.Sources.Project)
	}
}

func Test_Load_Returns_Error_When_Config_Is_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		input   config.LoadInput
		wantErr error
	}{
		{name: "explicit file missing", input: config.LoadInput{ConfigPath: "nope.json"}, wantErr: config.ErrConfigFileNotFound},
		{name: "malformed jsonc", file: `{"codec": `, wantErr: config.ErrConfigInvalid},
		{name: "empty data root", file: `{"data_root": ""}`, wantErr: config.ErrDataRootEmpty},
		{name: "unknown codec", file: `{"codec": "xml"}`, wantErr: config.ErrInvalidValue},
		{name: "bad duration", file: `{"waiting_time": "soon"}`, wantErr: config.ErrConfigInvalid},
		{name: "negative duration", file: `{"waiting_time": "-1s"}`, wantErr: config.ErrInvalidValue},
		{name: "bad log level", file: `{"log_level": "loud"}`, wantErr: config.ErrInvalidValue},
		{name: "bad log format", file: `{"log_format": "xml"}`, wantErr: config.ErrInvalidValue},
		{name: "file escapes root", file: `{"file": "../x.json"}`, wantErr: config.ErrInvalidValue},
		{name: "absolute file", input: config.LoadInput{Overrides: config.Config{File: "/etc/x.json"}}, wantErr: config.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fsys := fs.NewMemory()
			if tt.file != "" {
				writeFile(t, fsys, "/work/.recdb.json", tt.file)
			}

			_, err := load(t, fsys, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want=%v", err, tt.wantErr)
			}
		})
	}
}

func Test_Load_Falls_Back_To_Home_When_XDG_Is_Unset(t *testing.T) {
	t.Parallel()

	fsys := fs.NewMemory()
	writeFile(t, fsys, "/home/u/.config/recdb/config.json", `{"metrics_addr": ":9100"}`)

	cfg, err := load(t, fsys, config.LoadInput{Env: map[string]string{"HOME": "/home/u"}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MetricsAddr != ":9100" {
		t.Fatalf("metrics addr=%q, want=:9100", cfg.MetricsAddr)
	}
}

func Test_Duration_Marshals_As_String(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	data, err := cfg.WaitingTime.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != `"10s"` {
		t.Fatalf("json=%s, want=\"10s\"", data)
	}
}

func Test_NewLogger_Applies_Level_And_Format(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := config.Default()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	log, err := config.NewLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.Info("hidden")
	log.WithField("store", "notes").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info entry logged at warn level: %s", out)
	}

	if !strings.Contains(out, `"store":"notes"`) || !strings.Contains(out, `"level":"warning"`) {
		t.Fatalf("unexpected json log: %s", out)
	}

	if log.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level=%v, want=warn", log.GetLevel())
	}
}
