// Package version carries the build metadata reported by mbp-ingest and
// mbp-query at startup. Both binaries share one set of ldflags:
//
//	pkg=github.com/rickgao/mbp-history/internal/version
//	go build -ldflags "-X $pkg.Version=$(git describe --tags) -X $pkg.Commit=$(git rev-parse --short HEAD) \
//	    -X $pkg.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/...
//
// Unset values stay at their development defaults.
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String formats the metadata for -version style output.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// LogAttrs returns the metadata as slog key/value pairs.
func LogAttrs() []any {
	return []any{"version", Version, "commit", Commit, "build_time", BuildTime}
}
