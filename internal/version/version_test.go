package version

import (
	"runtime/debug"
	"testing"
)

func TestInfoString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   Info
		want string
	}{
		{Info{Version: "dev"}, "dev"},
		{Info{Version: "v1.2.0", Commit: "0123456789abcdef"}, "v1.2.0 (0123456789ab)"},
		{Info{Version: "v1.2.0", Commit: "abc", BuildTime: "2024-05-01"}, "v1.2.0 (abc) built 2024-05-01"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestFillFromBuildSettings(t *testing.T) {
	t.Parallel()

	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "deadbeef"},
		{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
		{Key: "GOOS", Value: "linux"},
	}

	filled := fillFromBuildSettings(Info{Version: "v1"}, settings)
	if filled.Commit != "deadbeef" || filled.BuildTime != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected fill %+v", filled)
	}

	kept := fillFromBuildSettings(Info{Version: "v1", Commit: "cafe", BuildTime: "now"}, settings)
	if kept.Commit != "cafe" || kept.BuildTime != "now" {
		t.Fatalf("explicit values must win, got %+v", kept)
	}
}
