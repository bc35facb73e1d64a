package version

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
)

// set via -ldflags "-X github.com/noot-app/nutrient-engine/internal/version.tag=..."
var (
	tag       = "dev"
	commit    = ""
	buildTime = ""
)

const releaseURL = "https://github.com/noot-app/nutrient-engine/releases/tag/"

// readBuildInfo is swapped in tests
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary. Commit and BuildTime come from ldflags
// and fall back to the VCS stamp embedded by the Go toolchain.
type Info struct {
	Tag       string `json:"tag"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

// Get resolves the build information of the running binary
func Get() Info {
	info := Info{Tag: tag, Commit: commit, BuildTime: buildTime}

	bi, ok := readBuildInfo()
	if !ok || bi == nil {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if buildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Tag is the release tag the binary was built from
func Tag() string {
	return tag
}

// ReleaseURL links to the release notes of the tag
func (i Info) ReleaseURL() string {
	return releaseURL + i.Tag
}

// String renders "tag (commit) built at time" followed by the release link.
// Unknown parts are shown as "unknown".
func (i Info) String() string {
	rev := orUnknown(shortCommit(i.Commit))
	if i.Modified {
		rev += "-dirty"
	}
	return fmt.Sprintf("%s (%s) built at %s\n%s", i.Tag, rev, orUnknown(i.BuildTime), i.ReleaseURL())
}

// LogValue lets the build info be logged as a group
func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("tag", i.Tag),
		slog.String("commit", orUnknown(shortCommit(i.Commit))),
		slog.String("build_time", orUnknown(i.BuildTime)),
		slog.Bool("modified", i.Modified),
	)
}

// String is shorthand for Get().String()
func String() string {
	return Get().String()
}

func shortCommit(c string) string {
	c = strings.TrimSpace(c)
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
