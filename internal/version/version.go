// Package version carries build metadata injected with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/boss-relay/internal/version.Version=$(git describe --tags) \
//	                   -X github.com/rickgao/boss-relay/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/boss-relay/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns "version (commit) built time".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent identifies the relay in upstream requests and handshakes.
func UserAgent() string {
	return "boss-relay/" + Version
}
