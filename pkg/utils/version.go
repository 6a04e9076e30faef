// Package utils holds one-off helpers shared by the forky commands that are
// too small to justify their own package.
package utils

// Build metadata, overridden at link time via -ldflags by the release build.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)
