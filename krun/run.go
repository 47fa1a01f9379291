// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/Samsung/TizenRT-sub134/script"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func runArchives(ctx *cli.Context) error {
	files := ctx.Args()
	if len(files) == 0 {
		return errors.New("run: no archives")
	}
	base, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for i, file := range files {
		a, err := script.ReadArchive(file)
		if err != nil {
			return err
		}
		cfg, err := a.ConfigOver(base)
		if err != nil {
			return errors.Wrap(err, file)
		}
		applyFlags(ctx, cfg)
		if i > 0 {
			// The file hook is installed by the first boot.
			cfg.Log.Dir = ""
		}
		a.Config = cfg
		have, _, err := a.Run()
		if err != nil {
			fmt.Printf("%s %s: %v\n", color.RedString("FAIL"), file, err)
			failed++
			continue
		}
		if ctx.Bool("update") {
			if err := os.WriteFile(file, a.Format(have), 0o666); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", color.YellowString("UPDATE"), file)
			continue
		}
		if have != a.Want {
			fmt.Printf("%s %s\nhave:\n%swant:\n%s", color.RedString("FAIL"), file, have, a.Want)
			failed++
			continue
		}
		fmt.Printf("%s %s\n", color.GreenString("PASS"), file)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d scenarios failed", failed, len(files))
	}
	return nil
}
