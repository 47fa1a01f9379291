// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Krun runs kernel scenarios.
//
// Usage:
//
//	krun [global flags] run [--update] FILE.txtar...
//	krun [global flags] shell
//	krun [global flags] config
//
// The run command boots a fresh kernel for each scenario archive, runs
// its script and compares the output with the archive's want file. An
// archive's config.toml is read over the --config file; the logging
// flags override both. The
// shell command boots one kernel and reads script lines from standard
// input. The config command prints the effective configuration.
package main

import (
	"os"
	"path/filepath"

	"github.com/Samsung/TizenRT-sub134/config"
	"github.com/Samsung/TizenRT-sub134/logging"
	"github.com/urfave/cli"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "read the kernel configuration from TOML `file`",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "loglevel",
		Usage: "log `level` (debug, info, warn, error)",
	}
	logDirFlag = cli.StringFlag{
		Name:  "logdir",
		Usage: "also write logs to rotated files in `dir`",
	}
	rotateFlag = cli.UintFlag{
		Name:  "rotate",
		Usage: "number of rotated log files to keep",
	}
	updateFlag = cli.BoolFlag{
		Name:  "update",
		Usage: "rewrite the want file of each archive with the output",
	}
)

var app = cli.NewApp()

func init() {
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "run kernel scenarios"
	app.HideVersion = true
	app.Flags = []cli.Flag{
		configFlag,
		logLevelFlag,
		logDirFlag,
		rotateFlag,
	}
	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "run scenario archives and check their output",
			ArgsUsage: "FILE.txtar...",
			Flags:     []cli.Flag{updateFlag},
			Action:    runArchives,
		},
		{
			Name:   "shell",
			Usage:  "boot a kernel and run script lines interactively",
			Action: shell,
		},
		{
			Name:   "config",
			Usage:  "print the effective configuration",
			Action: printConfig,
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		logging.Logger.Fatal(err)
	}
}

// loadConfig returns the configuration file named by --config, or the
// defaults, with the logging flags applied.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if file := ctx.GlobalString("config"); file != "" {
		var err error
		if cfg, err = config.Load(file); err != nil {
			return nil, err
		}
	}
	applyFlags(ctx, cfg)
	return cfg, nil
}

// applyFlags overrides the logging settings of cfg with the flags set
// on the command line.
func applyFlags(ctx *cli.Context, cfg *config.Config) {
	if ctx.GlobalIsSet("loglevel") {
		cfg.Log.Level = ctx.GlobalString("loglevel")
	}
	if ctx.GlobalIsSet("logdir") {
		cfg.Log.Dir = ctx.GlobalString("logdir")
	}
	if ctx.GlobalIsSet("rotate") {
		cfg.Log.Rotate = ctx.GlobalUint("rotate")
	}
}

func printConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	return config.Encode(os.Stdout, cfg)
}
