// Package version carries build information injected at link time.
package version

var (
	// Version is the semantic version or "dev" for local builds.
	Version = "dev"
	// Commit is the git revision the binary was built from.
	Commit = ""
)

// GetInfo renders the version for banners and the version command.
func GetInfo() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
