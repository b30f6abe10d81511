package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateConfig validates a configuration after defaults have been applied.
func ValidateConfig(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	for _, check := range []func() error{
		cv.validatePaths,
		cv.validateSources,
		cv.validateProvision,
		cv.validateBuild,
		cv.validatePackage,
		cv.validateRetry,
		cv.validateTimeouts,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (cv *configurationValidator) validatePaths() error {
	p := cv.config.Paths
	for name, value := range map[string]string{
		"paths.root":         p.Root,
		"paths.lib_dir":      p.LibDir,
		"paths.tunnel_out":   p.TunnelOut,
		"paths.package_root": p.PackageRoot,
		"paths.publish_dir":  p.PublishDir,
		"paths.state_dir":    p.StateDir,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}
	if p.PackageRoot == p.Root {
		return errors.New("paths.package_root must differ from paths.root")
	}
	return nil
}

func (cv *configurationValidator) validateSources() error {
	s := cv.config.Sources
	if NormalizeSourceBackend(string(s.Backend)) == "" {
		return fmt.Errorf("invalid sources.backend: %s (valid: cli, gogit)", s.Backend)
	}
	for key, co := range map[string]Checkout{"tunnel": s.Tunnel, "control_plane": s.ControlPlane} {
		if co.URL == "" || co.Ref == "" || co.Path == "" {
			return fmt.Errorf("sources.%s requires url, ref and path", key)
		}
		if !co.Auth.IsZero() {
			switch co.Auth.Type {
			case AuthTypeToken, AuthTypeBasic, AuthTypeSSH:
			default:
				return fmt.Errorf("sources.%s.auth: unsupported type %q", key, co.Auth.Type)
			}
		}
	}
	if s.Tunnel.Path == s.ControlPlane.Path {
		return errors.New("sources.tunnel.path and sources.control_plane.path must differ")
	}
	return nil
}

func (cv *configurationValidator) validateProvision() error {
	for i, lib := range cv.config.Provision.HostLibs {
		if lib.Source == "" || lib.Soname == "" {
			return fmt.Errorf("provision.host_libs[%d] requires source and soname", i)
		}
	}
	seen := make(map[string]bool)
	for _, dep := range cv.config.Provision.Dependencies {
		if dep.Name == "" {
			return errors.New("provision dependency name cannot be empty")
		}
		if seen[dep.Name] {
			return fmt.Errorf("duplicate provision dependency: %s", dep.Name)
		}
		seen[dep.Name] = true
		if dep.Fetch.URL == "" {
			return fmt.Errorf("dependency %s: fetch.url is required", dep.Name)
		}
		switch dep.Fetch.Kind {
		case FetchGit:
			if dep.Fetch.Ref == "" {
				return fmt.Errorf("dependency %s: git fetch requires a ref", dep.Name)
			}
		case FetchArchive:
			if ArchiveFormat(dep.Fetch.URL) == "" {
				return fmt.Errorf("dependency %s: unsupported archive %s (want .tar.gz, .tgz or .tar.xz)", dep.Name, dep.Fetch.URL)
			}
		default:
			return fmt.Errorf("dependency %s: unknown fetch kind %q", dep.Name, dep.Fetch.Kind)
		}
		for j, step := range dep.Steps {
			if len(step.Run) == 0 {
				return fmt.Errorf("dependency %s: step %d has no command", dep.Name, j)
			}
		}
		if len(dep.Artifacts) == 0 {
			return fmt.Errorf("dependency %s: at least one artifact is required", dep.Name)
		}
	}
	return nil
}

func (cv *configurationValidator) validateBuild() error {
	if len(cv.config.Build.Tunnel.Binaries) == 0 {
		return errors.New("build.tunnel.binaries cannot be empty")
	}
	if len(cv.config.Build.ControlPlane.Binaries) == 0 {
		return errors.New("build.control_plane.binaries cannot be empty")
	}
	return nil
}

func (cv *configurationValidator) validatePackage() error {
	pk := cv.config.Package
	if pk.Archive == "" {
		return errors.New("package.archive cannot be empty")
	}
	if len(pk.Builder) == 0 {
		return errors.New("package.builder cannot be empty")
	}
	for _, m := range append(append([]FileMapping{}, pk.Files...), pk.Trees...) {
		if m.From == "" || m.To == "" {
			return fmt.Errorf("package mapping %q -> %q requires from and to", m.From, m.To)
		}
		if strings.HasPrefix(m.To, "/") || strings.Contains(m.To, "..") {
			return fmt.Errorf("package mapping destination %q must stay inside the package tree", m.To)
		}
	}
	return nil
}

func (cv *configurationValidator) validateRetry() error {
	r := cv.config.Retry
	if r.MaxRetries < 0 {
		return errors.New("retry.max_retries cannot be negative")
	}
	if NormalizeRetryBackoff(string(r.Backoff)) == "" {
		return fmt.Errorf("invalid retry.backoff: %s", r.Backoff)
	}
	if r.InitialDelay < 0 || r.MaxDelay < 0 {
		return errors.New("retry delays cannot be negative")
	}
	return nil
}

func (cv *configurationValidator) validateTimeouts() error {
	t := cv.config.Timeouts
	if t.Default < 0 || t.Fetch < 0 || t.Build < 0 || t.Package < 0 {
		return errors.New("timeouts cannot be negative")
	}
	return nil
}

// ArchiveFormat returns "gz" or "xz" for supported source archive URLs and "" otherwise.
func ArchiveFormat(url string) string {
	u := strings.ToLower(url)
	switch {
	case strings.HasSuffix(u, ".tar.gz"), strings.HasSuffix(u, ".tgz"):
		return "gz"
	case strings.HasSuffix(u, ".tar.xz"), strings.HasSuffix(u, ".txz"):
		return "xz"
	default:
		return ""
	}
}
