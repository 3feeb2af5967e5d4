package version

import (
	"runtime/debug"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFromBuildInfo(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	vcs := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "1234567890abcdef"},
		{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
		{Key: "vcs.modified", Value: "true"},
	}
	cases := []struct {
		name     string
		info     *debug.BuildInfo
		override string
		want     Info
	}{
		{
			name:     "ldflags win",
			info:     &debug.BuildInfo{GoVersion: "go1.25.2", Main: debug.Module{Path: "example.com/fork", Version: "v0.9.0"}},
			override: "v1.2.3+dirty",
			want:     Info{Module: "example.com/fork", Version: "v1.2.3", GoVersion: "go1.25.2"},
		},
		{
			name: "module version",
			info: &debug.BuildInfo{GoVersion: "go1.25.2", Main: debug.Module{Path: defaultModule, Version: "v0.4.0"}},
			want: Info{Module: defaultModule, Version: "v0.4.0", GoVersion: "go1.25.2"},
		},
		{
			name: "pseudo from vcs",
			info: &debug.BuildInfo{GoVersion: "go1.25.2", Main: debug.Module{Path: defaultModule, Version: "(devel)"}, Settings: vcs},
			want: Info{
				Module:    defaultModule,
				Version:   "v0.0.0-20250102030405-1234567890ab",
				Revision:  "1234567890ab",
				Time:      ts,
				Dirty:     true,
				GoVersion: "go1.25.2",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, fromBuildInfo(tc.info, tc.override)); diff != "" {
				t.Fatalf("unexpected info (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromBuildInfoNil(t *testing.T) {
	got := fromBuildInfo(nil, "")
	if got.Module != defaultModule || got.Version != "v0.0.0-unknown" {
		t.Fatalf("unexpected fallback %+v", got)
	}
}

func TestCurrentPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
}

func TestInfoString(t *testing.T) {
	info := Info{
		Module:    defaultModule,
		Version:   "v1.0.0",
		Revision:  "1234567890ab",
		Time:      time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC),
		Dirty:     true,
		GoVersion: "go1.25.2",
	}
	want := "pkt.systems/cellbook v1.0.0 (1234567890ab 2025-01-02T03:04:05Z dirty) go1.25.2"
	if got := info.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := (Info{Module: "m", Version: "v1"}).String(); got != "m v1" {
		t.Fatalf("unexpected bare string %q", got)
	}
}
