package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Set with -ldflags "-X github.com/stateful/cellbook/internal/version.BuildVersion=...".
var (
	BuildDate    = "unknown"
	BuildVersion = "0.0.0"
	Commit       = "unknown"
)

// BaseVersion is the "vMAJOR.MINOR" part of BuildVersion, or "unknown".
func BaseVersion() string {
	v, err := semver.NewVersion(BuildVersion)
	if err != nil {
		return "unknown"
	}
	return fmt.Sprintf("v%d.%d", v.Major(), v.Minor())
}

// UserAgent identifies cellbook in requests to a Jupyter Server.
func UserAgent() string {
	return "cellbook/" + BaseVersion()
}

func Info() string {
	return fmt.Sprintf("%s (%s) on %s", BuildVersion, Commit, BuildDate)
}
