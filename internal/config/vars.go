package config

import (
	"os"
	"strings"
)

// Run variable names. They are never taken from the process environment; each run
// derives them from the resolved configuration and expands ${NAME} references in
// build steps, configure arguments and package mappings.
const (
	VarRoot            = "ROOT"
	VarLibDir          = "LIB_DIR"
	VarTunnelOut       = "TUNNEL_OUT"
	VarTunnelSrc       = "TUNNEL_SRC"
	VarControlPlaneSrc = "CONTROL_PLANE_SRC"
	VarPackageRoot     = "PACKAGE_ROOT"
	VarPublishDir      = "PUBLISH_DIR"
	VarStateDir        = "STATE_DIR"
	VarCargoHome       = "CARGO_HOME"
	VarOpenSSLDir      = "OPENSSL_DIR"
	VarArchive         = "ARCHIVE"
)

var runVariables = map[string]struct{}{
	VarRoot: {}, VarLibDir: {}, VarTunnelOut: {}, VarTunnelSrc: {}, VarControlPlaneSrc: {},
	VarPackageRoot: {}, VarPublishDir: {}, VarStateDir: {}, VarCargoHome: {}, VarOpenSSLDir: {},
	VarArchive: {},
}

// DependencyVar returns the run variable holding a dependency's source directory,
// e.g. "readline-8" -> "DEP_READLINE_8_SRC".
func DependencyVar(name string) string {
	var b strings.Builder
	b.WriteString("DEP_")
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteString("_SRC")
	return b.String()
}

// IsRunVariable reports whether name is reserved for per-run expansion.
func IsRunVariable(name string) bool {
	if _, ok := runVariables[name]; ok {
		return true
	}
	return strings.HasPrefix(name, "DEP_") && strings.HasSuffix(name, "_SRC")
}

// expandEnv substitutes process environment variables into raw config text while
// leaving run variables in place for later expansion.
func expandEnv(raw string, getenv func(string) string) string {
	return os.Expand(raw, func(name string) string {
		if IsRunVariable(name) {
			return "${" + name + "}"
		}
		return getenv(name)
	})
}

// RunVariables returns the run variables for a resolved configuration.
func (c *Config) RunVariables() map[string]string {
	vars := map[string]string{
		VarRoot:            c.Paths.Root,
		VarLibDir:          c.Paths.LibDir,
		VarTunnelOut:       c.Paths.TunnelOut,
		VarTunnelSrc:       c.Sources.Tunnel.Path,
		VarControlPlaneSrc: c.Sources.ControlPlane.Path,
		VarPackageRoot:     c.Paths.PackageRoot,
		VarPublishDir:      c.Paths.PublishDir,
		VarStateDir:        c.Paths.StateDir,
		VarCargoHome:       c.Paths.CargoHome,
		VarOpenSSLDir:      c.Build.ControlPlane.OpenSSLDir,
		VarArchive:         c.Package.Archive,
	}
	for _, dep := range c.Provision.Dependencies {
		vars[DependencyVar(dep.Name)] = dep.Dir
	}
	return vars
}

// resolvePaths expands run variables inside the path-valued fields themselves so
// that every other component sees absolute locations. Root is resolved first, then
// the remaining paths in dependency order.
func (c *Config) resolvePaths() {
	vars := map[string]string{VarRoot: c.Paths.Root}
	expand := func(s string) string {
		return os.Expand(s, func(name string) string {
			if v, ok := vars[name]; ok {
				return v
			}
			return "${" + name + "}"
		})
	}

	c.Paths.TunnelOut = expand(c.Paths.TunnelOut)
	vars[VarTunnelOut] = c.Paths.TunnelOut
	c.Paths.LibDir = expand(c.Paths.LibDir)
	vars[VarLibDir] = c.Paths.LibDir
	c.Paths.PackageRoot = expand(c.Paths.PackageRoot)
	vars[VarPackageRoot] = c.Paths.PackageRoot
	c.Paths.PublishDir = expand(c.Paths.PublishDir)
	vars[VarPublishDir] = c.Paths.PublishDir
	c.Paths.StateDir = expand(c.Paths.StateDir)
	vars[VarStateDir] = c.Paths.StateDir
	c.Paths.CargoHome = expand(c.Paths.CargoHome)
	vars[VarCargoHome] = c.Paths.CargoHome

	c.Sources.Tunnel.Path = expand(c.Sources.Tunnel.Path)
	c.Sources.ControlPlane.Path = expand(c.Sources.ControlPlane.Path)
	for i := range c.Provision.Dependencies {
		c.Provision.Dependencies[i].Dir = expand(c.Provision.Dependencies[i].Dir)
	}
	c.Package.Archive = expand(c.Package.Archive)
	c.History.Path = expand(c.History.Path)
	c.Metrics.TextFile = expand(c.Metrics.TextFile)
}
