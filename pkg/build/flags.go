// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata injected at link time (name, build
// time, commit and version) so the CLI can print it and the logs can tag
// a session with it.
//
//	go build -ldflags "-X audioscope/pkg/build.buildVersion=0.3.0 -X audioscope/pkg/build.buildCommit=$(git rev-parse --short HEAD)"
package build

import (
	"errors"
	"fmt"
)

// Info is the resolved build information.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the info as a single version line.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Populated by -ldflags; empty during development.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

const unknown = "unknown"

var current = Info{
	Name:        "audioscope",
	Description: "Real-time audio spectrum and oscilloscope feed",
	Time:        unknown,
	Commit:      unknown,
	Version:     "dev",
}

// ErrIncomplete is returned by Initialize when only some of the link-time
// flags were provided, which usually means a broken release script.
var ErrIncomplete = errors.New("incomplete build flags")

// Initialize copies the link-time variables into the package info. A
// development build (no flags at all) keeps the defaults. A partially
// flagged build returns ErrIncomplete naming the first missing flag.
func Initialize() error {
	flags := []struct {
		name  string
		value string
	}{
		{"buildName", buildName},
		{"buildTime", buildTime},
		{"buildCommit", buildCommit},
		{"buildVersion", buildVersion},
	}

	set := 0
	missing := ""
	for _, f := range flags {
		if f.value != "" {
			set++
		} else if missing == "" {
			missing = f.name
		}
	}
	if set == 0 {
		return nil
	}
	if set != len(flags) {
		return fmt.Errorf("%w: %s is required", ErrIncomplete, missing)
	}

	current.Name = buildName
	current.Time = buildTime
	current.Commit = buildCommit
	current.Version = buildVersion
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() Info {
	return current
}
