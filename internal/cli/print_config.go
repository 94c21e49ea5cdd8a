package cli

import (
	"context"
	"encoding/json"

	flag "github.com/spf13/pflag"
)

func printConfigCmd(a *app) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage:   "print-config",
		Short:   "Show resolved configuration",
		Long:    "Display the effective configuration and which files it was loaded from.",
		Offline: true,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			data, err := json.MarshalIndent(a.cfg, "", "  ")
			if err != nil {
				return err
			}

			o.Println(string(data))
			o.Println("")
			o.Println("# effective_cwd:", a.cfg.EffectiveCwd)
			o.Println("# data_root:", a.cfg.DataRootAbs)
			o.Println("# sources:")

			if a.cfg.Sources.Global != "" {
				o.Println("#   global:", a.cfg.Sources.Global)
			}

			if a.cfg.Sources.Project != "" {
				o.Println("#   project:", a.cfg.Sources.Project)
			}

			if a.cfg.Sources.Global == "" && a.cfg.Sources.Project == "" {
				o.Println("#   (using defaults only)")
			}

			return nil
		},
	}
}
