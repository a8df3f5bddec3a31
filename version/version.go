// Package version reports what build of the catalog binary is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/Masterminds/semver/v3"
)

// Set via -ldflags "-X github.com/teranos/catalog/version.Version=...".
// Left unset, Get falls back to the VCS stamp Go embeds in the binary.
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// Info describes the running binary
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Modified   bool   `json:"modified,omitempty"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the build information of the running binary
func Get() Info {
	info := Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fillFromVCS(bi.Settings)
	}
	if info.CommitHash == "" {
		info.CommitHash = "unknown"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}

// fillFromVCS fills fields ldflags left empty
func (i *Info) fillFromVCS(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "" {
				i.CommitHash = s.Value
			}
		case "vcs.time":
			if i.BuildTime == "" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

// Semver parses Version. Development builds return an error.
func (i Info) Semver() (*semver.Version, error) {
	return semver.NewVersion(i.Version)
}

// Short returns the first seven characters of the commit
func (i Info) Short() string {
	if len(i.CommitHash) > 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

func (i Info) String() string {
	v := i.Version
	if sv, err := i.Semver(); err == nil {
		v = "v" + sv.String()
	}
	dirty := ""
	if i.Modified {
		dirty = ", modified"
	}
	return fmt.Sprintf("catalog %s (commit %s, built %s%s)", v, i.Short(), i.BuildTime, dirty)
}
