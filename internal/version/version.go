// Package version exposes build version information.
package version

// Version is overridden at build time via -ldflags.
var Version = "dev"

// String returns the printable version.
func String() string {
	return Version
}
