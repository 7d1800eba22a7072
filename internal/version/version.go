// Package version holds build-time identification for uncov, set via
// -ldflags at release time.
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// Commit is the VCS revision the binary was built from.
	Commit = "none"
	// BuildDate is when the binary was built.
	BuildDate = "unknown"
)

// Print renders a one-line banner for prog, suitable for --version
// output and startup logging.
func Print(prog string) string {
	return fmt.Sprintf("%s version %s, commit %s, built %s", prog, Version, Commit, BuildDate)
}

// String is an alias for Print("uncov"), used where the program name
// is implicit.
func String() string {
	return Print("uncov")
}
