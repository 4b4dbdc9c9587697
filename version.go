package corerun

// Build-time version stamps, overridden via -ldflags in release builds.
const (
	// Version is the current module version
	Version = "development"

	// APIVersion is the current API version
	APIVersion = "v1alpha1"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
