// Package buildinfo contains build-time metadata kept separate from user configuration
package buildinfo

import (
	"fmt"
	"runtime"
)

const unknown = "unknown"

// Context contains build-time metadata that is not user-configurable.
// It is injected at startup through -ldflags and never stored in config.yaml.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// GetVersion returns the build version, or "unknown" when not stamped.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate returns the build date, or "unknown" when not stamped.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// String renders the one-line form printed by --version.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s, %s %s/%s)",
		c.GetVersion(), c.GetBuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
