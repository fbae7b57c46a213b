// Package buildinfo exposes the version metadata stamped into release
// binaries via -ldflags.
package buildinfo

// Set at build time with
// -ldflags "-X .../internal/buildinfo.Version=1.2.3 ...". Development
// builds keep the defaults.
var (
	Version = "dev"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

// String renders the metadata on one line for `stagehand version`.
func String() string {
	return "version=" + Version + " commit=" + Commit + " built_at=" + BuiltAt
}
