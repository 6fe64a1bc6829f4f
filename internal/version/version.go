// Package version reports the build version of webtabs.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	defaultModule = "pkt.systems/webtabs"
	unknown       = "v0.0.0-unknown"
	dirtySuffix   = "+dirty"
)

// buildVersion is set via -ldflags "-X pkt.systems/webtabs/internal/version.buildVersion=...".
var buildVersion = ""

// Build describes the running binary.
type Build struct {
	Version  string `json:"version"`
	Module   string `json:"module"`
	Revision string `json:"revision,omitempty"`
	Dirty    bool   `json:"dirty,omitempty"`
	Go       string `json:"go"`
}

func (b Build) String() string {
	s := fmt.Sprintf("%s %s (%s)", b.Module, b.Version, b.Go)
	if b.Revision != "" {
		s += " rev " + b.Revision
		if b.Dirty {
			s += dirtySuffix
		}
	}
	return s
}

// Current returns the version without a dirty suffix.
func Current() string { return resolve(false) }

// CurrentWithDirty keeps the dirty suffix when the tree was modified.
func CurrentWithDirty() string { return resolve(true) }

// Product is the default User-Agent for requests webtabs makes itself,
// such as URL downloads outside a tab.
func Product() string {
	return "webtabs/" + strings.TrimPrefix(Current(), "v")
}

// Module returns the main module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok && strings.TrimSpace(info.Main.Path) != "" {
		return strings.TrimSpace(info.Main.Path)
	}
	return defaultModule
}

// Info collects version, module and vcs details.
func Info() Build {
	b := Build{Version: Current(), Module: Module(), Go: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok {
		vcs := readVCS(info)
		b.Revision, b.Dirty = vcs.revision, vcs.modified
	}
	return b
}

func resolve(keepDirty bool) string {
	v := strings.TrimSpace(buildVersion)
	if v == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			v = strings.TrimSpace(info.Main.Version)
			if v == "" || v == "(devel)" {
				v = pseudoFromBuildInfo(info, keepDirty)
			}
		}
	}
	if v == "" {
		return unknown
	}
	if !keepDirty {
		v = strings.TrimSuffix(v, dirtySuffix)
	}
	return v
}

type vcsInfo struct {
	revision string
	when     string
	modified bool
}

func readVCS(info *debug.BuildInfo) vcsInfo {
	var vcs vcsInfo
	if info == nil {
		return vcs
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			vcs.revision = s.Value
		case "vcs.time":
			vcs.when = s.Value
		case "vcs.modified":
			vcs.modified = s.Value == "true"
		}
	}
	return vcs
}

// pseudoFromBuildInfo builds a Go-style pseudo-version from vcs stamps.
func pseudoFromBuildInfo(info *debug.BuildInfo, keepDirty bool) string {
	vcs := readVCS(info)
	if vcs.revision == "" || vcs.when == "" {
		return ""
	}
	at, err := time.Parse(time.RFC3339, vcs.when)
	if err != nil {
		return ""
	}
	rev := vcs.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	v := "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + rev
	if vcs.modified && keepDirty {
		v += dirtySuffix
	}
	return v
}
