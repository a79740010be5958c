// Package buildinfo carries version metadata stamped at link time.
package buildinfo

var (
	Version = "dev"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

// Info returns the build metadata as a JSON-friendly map.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}
