package version

import (
	"bytes"
	"log/slog"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, tg, c, bt string, bi *debug.BuildInfo) {
	t.Helper()
	origTag, origCommit, origTime, origRead := tag, commit, buildTime, readBuildInfo
	t.Cleanup(func() {
		tag, commit, buildTime, readBuildInfo = origTag, origCommit, origTime, origRead
	})
	tag, commit, buildTime = tg, c, bt
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
}

func TestGet(t *testing.T) {
	vcs := &debug.BuildInfo{
		GoVersion: "go1.24.4",
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2025-05-01T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "GOOS", Value: "linux"},
		},
	}

	tests := []struct {
		name            string
		tag, commit, bt string
		bi              *debug.BuildInfo
		want            Info
		wantString      string
	}{
		{
			name: "ldflags only",
			tag:  "v1.0.0", commit: "abc123", bt: "2025-04-15",
			want:       Info{Tag: "v1.0.0", Commit: "abc123", BuildTime: "2025-04-15"},
			wantString: "v1.0.0 (abc123) built at 2025-04-15\nhttps://github.com/noot-app/nutrient-engine/releases/tag/v1.0.0",
		},
		{
			name: "vcs stamp fills missing ldflags",
			tag:  "dev",
			bi:   vcs,
			want: Info{Tag: "dev", Commit: "0123456789abcdef0123", BuildTime: "2025-05-01T10:00:00Z", Modified: true, GoVersion: "go1.24.4"},
			wantString: "dev (0123456789ab-dirty) built at 2025-05-01T10:00:00Z\n" +
				"https://github.com/noot-app/nutrient-engine/releases/tag/dev",
		},
		{
			name: "ldflags win over vcs stamp",
			tag:  "v2.0.0", commit: "ldflags-commit", bt: "ldflags-time",
			bi:         vcs,
			want:       Info{Tag: "v2.0.0", Commit: "ldflags-commit", BuildTime: "ldflags-time", Modified: true, GoVersion: "go1.24.4"},
			wantString: "v2.0.0 (ldflags-comm-dirty) built at ldflags-time\nhttps://github.com/noot-app/nutrient-engine/releases/tag/v2.0.0",
		},
		{
			name:       "nothing known",
			tag:        "dev",
			bi:         &debug.BuildInfo{},
			want:       Info{Tag: "dev"},
			wantString: "dev (unknown) built at unknown\nhttps://github.com/noot-app/nutrient-engine/releases/tag/dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, tt.tag, tt.commit, tt.bt, tt.bi)

			got := Get()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantString, got.String())
			assert.Equal(t, tt.wantString, String())
		})
	}
}

func TestTag(t *testing.T) {
	withBuild(t, "v0.3.1", "", "", nil)
	assert.Equal(t, "v0.3.1", Tag())
	assert.Equal(t, "https://github.com/noot-app/nutrient-engine/releases/tag/v0.3.1", Get().ReleaseURL())
}

func TestInfoLogValue(t *testing.T) {
	withBuild(t, "v1.2.0", "abc", "", nil)

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("Starting", "build", Get())
	assert.Contains(t, buf.String(), "build.tag=v1.2.0")
	assert.Contains(t, buf.String(), "build.commit=abc")
	assert.Contains(t, buf.String(), "build.build_time=unknown")
}
