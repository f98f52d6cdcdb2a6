// Package version exposes build metadata injected at link time.
//
// The values are set via -ldflags, e.g:
//
//	go build -ldflags "-X github.com/information-sharing-networks/provenance-demo/internal/version.version=v0.2.0"
package version

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
}

// Get returns the build information for the running binary.
func Get() Info {
	return Info{
		Version:   version,
		GitCommit: gitCommit,
		BuildDate: buildDate,
	}
}
