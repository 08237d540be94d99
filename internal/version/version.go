// Package version holds build metadata injected with -ldflags.
package version

// Version is overridden at build time:
//
//	go build -ldflags "-X github.com/bnema/tasktracker-cli/internal/version.Version=v1.2.3" ./cmd/tt
var Version = "dev"
