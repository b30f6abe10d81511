package config

import "time"

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// defaultAppliers run in order; paths first because other domains reference ${ROOT}-relative locations.
func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		&PathsDefaultApplier{},
		&SourcesDefaultApplier{},
		&ProvisionDefaultApplier{},
		&BuildDefaultApplier{},
		&PackageDefaultApplier{},
		&RetryDefaultApplier{},
		&TimeoutsDefaultApplier{},
		&LogDefaultApplier{},
		&HistoryDefaultApplier{},
		&NotifyDefaultApplier{},
	}
}

// applyDefaults runs every domain applier.
func applyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers() {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

// PathsDefaultApplier mirrors the build host layout the package was historically produced on.
type PathsDefaultApplier struct{}

func (p *PathsDefaultApplier) Domain() string { return "paths" }

func (p *PathsDefaultApplier) ApplyDefaults(cfg *Config) error {
	setDefault(&cfg.Paths.Root, "/root")
	setDefault(&cfg.Paths.TunnelOut, "${ROOT}/tinc")
	setDefault(&cfg.Paths.LibDir, "${TUNNEL_OUT}/lib")
	setDefault(&cfg.Paths.PackageRoot, "${ROOT}/dnet")
	setDefault(&cfg.Paths.PublishDir, "/mnt")
	setDefault(&cfg.Paths.StateDir, "${ROOT}/.meshpack")
	setDefault(&cfg.Paths.CargoHome, "${ROOT}/.cargo")
	return nil
}

// SourcesDefaultApplier handles checkout defaults.
type SourcesDefaultApplier struct{}

func (s *SourcesDefaultApplier) Domain() string { return "sources" }

func (s *SourcesDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Sources.Backend == "" {
		cfg.Sources.Backend = SourceBackendCLI
	} else if b := NormalizeSourceBackend(string(cfg.Sources.Backend)); b != "" {
		cfg.Sources.Backend = b
	}

	t := &cfg.Sources.Tunnel
	setDefault(&t.Name, "tinc")
	setDefault(&t.URL, "https://git.vlan.cn/DNET/tinc.git")
	setDefault(&t.Ref, "Release-1.1pre17")
	setDefault(&t.Path, "${ROOT}/tinc_src")

	c := &cfg.Sources.ControlPlane
	setDefault(&c.Name, "dnetnode")
	setDefault(&c.URL, "http://git.vlan.cn/dnet/dnetnode")
	setDefault(&c.Ref, "origin_tinc")
	setDefault(&c.Path, "${ROOT}/dnetnode")
	return nil
}

// ProvisionDefaultApplier fills the host library and dependency lists only when omitted entirely.
type ProvisionDefaultApplier struct{}

func (p *ProvisionDefaultApplier) Domain() string { return "provision" }

func (p *ProvisionDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Provision.HostLibs == nil {
		cfg.Provision.HostLibs = []HostLib{
			{Source: "/usr/lib/x86_64-linux-gnu/liblzo2.so", Soname: "liblzo2.so.2"},
			{Source: "/lib/x86_64-linux-gnu/libncurses.so.5.9", Soname: "libncurses.so.5", Optional: true},
		}
	}
	if cfg.Provision.Dependencies == nil {
		cfg.Provision.Dependencies = []Dependency{
			{
				Name:  "openssl",
				Fetch: FetchSpec{Kind: FetchGit, URL: "https://github.com/openssl/openssl.git", Ref: "OpenSSL_1_1_1c"},
				Dir:   "${ROOT}/openssl",
				Steps: []Step{
					{Run: []string{"./config", "shared"}},
					{Run: []string{"make", "install"}},
				},
				Artifacts: []FileMapping{
					{From: "libssl.so.1.1", To: "libssl.so.1.1"},
					{From: "libcrypto.so.1.1", To: "libcrypto.so.1.1"},
				},
			},
			{
				Name:  "readline",
				Fetch: FetchSpec{Kind: FetchArchive, URL: "http://ftp.gnu.org/gnu/readline/readline-8.0.tar.gz"},
				Dir:   "${ROOT}/readline-8.0",
				Steps: []Step{
					{Run: []string{"./configure", "--enable-shared"}},
					{Run: []string{"make"}},
					{Run: []string{"make", "install"}},
				},
				Artifacts: []FileMapping{
					{From: "shlib/libreadline.so.8.0", To: "libreadline.so.8"},
				},
			},
		}
	}
	for i := range cfg.Provision.Dependencies {
		d := &cfg.Provision.Dependencies[i]
		if d.Fetch.Kind == "" {
			d.Fetch.Kind = FetchGit
		}
		setDefault(&d.Dir, "${ROOT}/"+d.Name)
	}

	tc := &cfg.Provision.Toolchain
	setDefault(&tc.InstallerURL, "https://sh.rustup.rs")
	if tc.InstallerArgs == nil {
		tc.InstallerArgs = []string{"-y"}
	}
	return nil
}

// BuildDefaultApplier handles component build defaults.
type BuildDefaultApplier struct{}

func (b *BuildDefaultApplier) Domain() string { return "build" }

func (b *BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	t := &cfg.Build.Tunnel
	if t.ConfigureArgs == nil {
		t.ConfigureArgs = []string{
			"--with-readline-lib=${DEP_READLINE_SRC}/shlib/",
			"--with-readline-include=${DEP_READLINE_SRC}/include",
		}
	}
	setDefault(&t.RPath, "/opt/dnet/tinc/lib")
	if t.Binaries == nil {
		t.Binaries = []string{"src/tinc", "src/tincd"}
	}

	cp := &cfg.Build.ControlPlane
	// An untouched section gets the full default set, including the boolean switches.
	if cp.OpenSSLDir == "" && cp.Binaries == nil && !cp.OpenSSLStatic && !cp.UpdateToolchain {
		cp.OpenSSLStatic = true
		cp.UpdateToolchain = true
	}
	setDefault(&cp.OpenSSLDir, "/usr/local")
	if cp.Binaries == nil {
		cp.Binaries = []string{"target/release/dnet-daemon", "target/release/dnet", "target/release/tinc-report"}
	}
	return nil
}

// PackageDefaultApplier lays out the installed filesystem of the node package.
type PackageDefaultApplier struct{}

func (p *PackageDefaultApplier) Domain() string { return "package" }

func (p *PackageDefaultApplier) ApplyDefaults(cfg *Config) error {
	pk := &cfg.Package
	if pk.Skeleton == nil {
		pk.Skeleton = []string{
			"DEBIAN",
			"lib/systemd/system",
			"opt/dnet",
			"opt/dnet/tinc",
			"opt/dnet/tinc/lib",
		}
	}
	if pk.Files == nil {
		pk.Files = []FileMapping{
			{From: "${CONTROL_PLANE_SRC}/cert.pem", To: "opt/dnet/cert.pem"},
			{From: "${CONTROL_PLANE_SRC}/key.pem", To: "opt/dnet/key.pem"},
			{From: "${CONTROL_PLANE_SRC}/settings.example.toml", To: "opt/dnet/settings.toml"},
			{From: "${CONTROL_PLANE_SRC}/target/release/dnet-daemon", To: "opt/dnet/dnet-daemon"},
			{From: "${CONTROL_PLANE_SRC}/target/release/dnet", To: "opt/dnet/dnet"},
			{From: "${CONTROL_PLANE_SRC}/target/release/tinc-report", To: "opt/dnet/tinc/tinc-report"},
			{From: "${CONTROL_PLANE_SRC}/compile_script/control", To: "DEBIAN/control"},
			{From: "${CONTROL_PLANE_SRC}/compile_script/dnet.service", To: "lib/systemd/system/dnet.service"},
		}
	}
	if pk.Trees == nil {
		pk.Trees = []FileMapping{{From: "${TUNNEL_OUT}", To: "opt/dnet/tinc"}}
	}
	setDefault(&pk.Archive, "${ROOT}/dnet.deb")
	if pk.Builder == nil {
		pk.Builder = []string{"dpkg-deb", "-b", "${PACKAGE_ROOT}", "${ARCHIVE}"}
	}
	return nil
}

// RetryDefaultApplier handles retry policy defaults.
type RetryDefaultApplier struct{}

func (r *RetryDefaultApplier) Domain() string { return "retry" }

func (r *RetryDefaultApplier) ApplyDefaults(cfg *Config) error {
	rc := &cfg.Retry
	if *rc == (RetryConfig{}) {
		rc.MaxRetries = 5
	}
	if rc.Backoff == "" {
		rc.Backoff = RetryBackoffExponential
	} else if m := NormalizeRetryBackoff(string(rc.Backoff)); m != "" {
		rc.Backoff = m
	}
	if rc.InitialDelay == 0 {
		rc.InitialDelay = 2 * time.Second
	}
	if rc.MaxDelay == 0 {
		rc.MaxDelay = time.Minute
	}
	return nil
}

// TimeoutsDefaultApplier bounds every external process invocation.
type TimeoutsDefaultApplier struct{}

func (t *TimeoutsDefaultApplier) Domain() string { return "timeouts" }

func (t *TimeoutsDefaultApplier) ApplyDefaults(cfg *Config) error {
	to := &cfg.Timeouts
	if to.Default == 0 {
		to.Default = 30 * time.Minute
	}
	if to.Fetch == 0 {
		to.Fetch = 15 * time.Minute
	}
	if to.Build == 0 {
		to.Build = 2 * time.Hour
	}
	if to.Package == 0 {
		to.Package = 10 * time.Minute
	}
	return nil
}

// LogDefaultApplier normalizes logging settings.
type LogDefaultApplier struct{}

func (l *LogDefaultApplier) Domain() string { return "log" }

func (l *LogDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Log.Level = NormalizeLogLevel(string(cfg.Log.Level))
	cfg.Log.Format = NormalizeLogFormat(string(cfg.Log.Format))
	return nil
}

// HistoryDefaultApplier places the run journal under the state directory.
type HistoryDefaultApplier struct{}

func (h *HistoryDefaultApplier) Domain() string { return "history" }

func (h *HistoryDefaultApplier) ApplyDefaults(cfg *Config) error {
	setDefault(&cfg.History.Path, "${STATE_DIR}/history.db")
	return nil
}

// NotifyDefaultApplier sets the notification subject; notifications stay off without a URL.
type NotifyDefaultApplier struct{}

func (n *NotifyDefaultApplier) Domain() string { return "notify" }

func (n *NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	setDefault(&cfg.Notify.Subject, "meshpack.runs")
	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
