// Package version carries build information injected with -ldflags, e.g.
//
//	-X github.com/slotrace/rms/internal/version.Version=v1.2.0
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build information for logs and -version output.
func String() string {
	return fmt.Sprintf("rms %s (%s, built %s)", Version, GitSHA, BuildTime)
}
