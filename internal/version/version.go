// Package version reports the build of the running binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/cellbook"

// buildVersion is set via -ldflags "-X pkt.systems/cellbook/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes a build.
type Info struct {
	Module    string
	Version   string
	Revision  string
	Time      time.Time
	Dirty     bool
	GoVersion string
}

// Read returns the build info of the running binary.
func Read() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, buildVersion)
}

// Current returns the version string of the running binary.
func Current() string {
	return Read().Version
}

// String renders the build as one line, e.g.
// "pkt.systems/cellbook v1.2.3 (1234567890ab 2025-01-02T03:04:05Z dirty) go1.25.2".
func (i Info) String() string {
	var details []string
	if i.Revision != "" {
		details = append(details, i.Revision)
	}
	if !i.Time.IsZero() {
		details = append(details, i.Time.UTC().Format(time.RFC3339))
	}
	if i.Dirty {
		details = append(details, "dirty")
	}
	line := i.Module + " " + i.Version
	if len(details) > 0 {
		line += " (" + strings.Join(details, " ") + ")"
	}
	if i.GoVersion != "" {
		line += " " + i.GoVersion
	}
	return line
}

func fromBuildInfo(info *debug.BuildInfo, override string) Info {
	out := Info{Module: defaultModule, Version: "v0.0.0-unknown", GoVersion: runtime.Version()}
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		if info.GoVersion != "" {
			out.GoVersion = info.GoVersion
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.Revision = shortRevision(setting.Value)
			case "vcs.time":
				if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					out.Time = parsed
				}
			case "vcs.modified":
				out.Dirty = setting.Value == "true"
			}
		}
	}
	switch {
	case strings.TrimSpace(override) != "":
		out.Version = strings.TrimSuffix(strings.TrimSpace(override), "+dirty")
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = strings.TrimSuffix(info.Main.Version, "+dirty")
	case out.Revision != "" && !out.Time.IsZero():
		out.Version = fmt.Sprintf("v0.0.0-%s-%s", out.Time.UTC().Format("20060102150405"), out.Revision)
	}
	return out
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
