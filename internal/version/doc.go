// Package version exposes build metadata shared by every silent-alarm binary.
//
// Version, Commit and BuildTime are set at link time, for example
//
//	-ldflags "-X github.com/oshokin/silent-alarm/internal/version.Commit=$(git rev-parse --short HEAD)"
//
// and keep their defaults in local builds.
package version
