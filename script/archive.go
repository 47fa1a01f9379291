// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package script

import (
	"bytes"
	"os"

	"github.com/Samsung/TizenRT-sub134/config"
	"github.com/Samsung/TizenRT-sub134/tinyara"
	"github.com/pkg/errors"
	"golang.org/x/tools/txtar"
)

// An Archive is a scenario stored as a txtar archive with the files
//
//	script       the script to run
//	want         its expected output
//	config.toml  optional configuration, over the defaults
//
// The archive comment describes the scenario.
type Archive struct {
	Comment string
	Script  string
	Want    string
	Config  *config.Config // config.toml over the defaults

	ar         *txtar.Archive
	configText string
}

// ParseArchive parses a scenario archive.
func ParseArchive(data []byte) (*Archive, error) {
	ar := txtar.Parse(data)
	a := &Archive{Comment: string(ar.Comment), ar: ar}
	var haveScript bool
	for _, f := range ar.Files {
		switch f.Name {
		case "script":
			a.Script, haveScript = string(f.Data), true
		case "want":
			a.Want = string(f.Data)
		case "config.toml":
			cfg, err := config.Parse(string(f.Data))
			if err != nil {
				return nil, err
			}
			a.Config, a.configText = cfg, string(f.Data)
		default:
			return nil, errors.Errorf("unexpected file %q in archive", f.Name)
		}
	}
	if !haveScript {
		return nil, errors.New("archive has no script")
	}
	if a.Config == nil {
		a.Config = config.Default()
	}
	return a, nil
}

// ConfigOver returns the archive's config.toml read over base instead
// of the defaults.
func (a *Archive) ConfigOver(base *config.Config) (*config.Config, error) {
	return config.Overlay(base, a.configText)
}

// ReadArchive reads the scenario archive in file.
func ReadArchive(file string) (*Archive, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	a, err := ParseArchive(data)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	return a, nil
}

// Run boots a system with the archive's configuration, runs the script
// and returns its output and the booted system.
func (a *Archive) Run() (string, *tinyara.System, error) {
	sys, err := tinyara.Boot(a.Config)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	err = Run(sys, a.Script, &buf)
	return buf.String(), sys, err
}

// Format returns the archive with want replaced.
func (a *Archive) Format(want string) []byte {
	ar := &txtar.Archive{Comment: a.ar.Comment}
	for _, f := range a.ar.Files {
		if f.Name == "want" {
			continue
		}
		ar.Files = append(ar.Files, f)
	}
	ar.Files = append(ar.Files, txtar.File{Name: "want", Data: []byte(want)})
	return txtar.Format(ar)
}
