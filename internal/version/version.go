// Package version exposes build identity injected with -ldflags at build time:
//
//	go build -ldflags "-X github.com/farert/farert-companion/internal/version.Version=1.4.0"
package version

// Build identity. Version also names the live offline cache generation, so every
// deploy with a new Version invalidates the previous generation.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitSHA    = ""
)
