// Package version holds the release of the BallotGuard binaries.
package version

// Flag marks development builds. It must be empty on release branches.
const Flag = ""

var (
	// Version is the full version string.
	Version = "0.1.0"

	// GitCommit is set with --ldflags "-X github.com/mosaicnetworks/ballotguard/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}

	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}
