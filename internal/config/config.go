package config

import "git.home.luguber.info/inful/meshpack/internal/foundation/normalization"

// Config is the complete meshpack configuration, loaded from meshpack.yaml.
//
// String fields may reference run variables such as ${LIB_DIR} or ${DEP_READLINE_SRC};
// those are left untouched at load time and expanded per run (see RunVariables).
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Sources   SourcesConfig   `yaml:"sources"`
	Provision ProvisionConfig `yaml:"provision"`
	Build     BuildConfig     `yaml:"build"`
	Package   PackageConfig   `yaml:"package"`
	Retry     RetryConfig     `yaml:"retry"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	History   HistoryConfig   `yaml:"history"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// PathsConfig holds the filesystem locations shared by every stage.
type PathsConfig struct {
	Root        string `yaml:"root"`         // base for every relative default below
	LibDir      string `yaml:"lib_dir"`      // shared-library staging directory
	TunnelOut   string `yaml:"tunnel_out"`   // tunnel daemon output; lib_dir lives beneath it
	PackageRoot string `yaml:"package_root"` // package tree root
	PublishDir  string `yaml:"publish_dir"`  // where the finished archive is deposited
	StateDir    string `yaml:"state_dir"`    // lock file, run history, downloads
	CargoHome   string `yaml:"cargo_home"`   // language toolchain home
}

// SourceBackend selects the implementation used to stage source checkouts.
type SourceBackend string

const (
	SourceBackendCLI   SourceBackend = "cli"
	SourceBackendGoGit SourceBackend = "gogit"
)

var sourceBackendNormalizer = normalization.NewNormalizer(map[string]SourceBackend{
	"cli":    SourceBackendCLI,
	"git":    SourceBackendCLI,
	"gogit":  SourceBackendGoGit,
	"go-git": SourceBackendGoGit,
}, "")

// NormalizeSourceBackend returns the typed backend or "" when unknown.
func NormalizeSourceBackend(raw string) SourceBackend {
	return sourceBackendNormalizer.Normalize(raw)
}

// SourcesConfig lists the first-party and forked checkouts.
type SourcesConfig struct {
	Backend      SourceBackend `yaml:"backend"`
	Tunnel       Checkout      `yaml:"tunnel"`
	ControlPlane Checkout      `yaml:"control_plane"`
}

// Checkout identifies a working tree by local path and remote location + ref.
type Checkout struct {
	Name string      `yaml:"name"`
	URL  string      `yaml:"url"`
	Ref  string      `yaml:"ref"`
	Path string      `yaml:"path"`
	Auth *AuthConfig `yaml:"auth,omitempty"`
}

// ProvisionConfig describes everything the provision stage stages into lib_dir.
type ProvisionConfig struct {
	HostLibs     []HostLib       `yaml:"host_libs"`
	Dependencies []Dependency    `yaml:"dependencies"`
	Toolchain    ToolchainConfig `yaml:"toolchain"`
}

// HostLib is a host shared library copied into lib_dir under its SONAME.
type HostLib struct {
	Source   string `yaml:"source"`
	Soname   string `yaml:"soname"`
	Optional bool   `yaml:"optional"` // a missing optional library is logged and skipped
}

// FetchKind selects how a native dependency's source is obtained.
type FetchKind string

const (
	FetchGit     FetchKind = "git"
	FetchArchive FetchKind = "archive"
)

// Dependency is a pinned native library built from source.
type Dependency struct {
	Name      string        `yaml:"name"`
	Fetch     FetchSpec     `yaml:"fetch"`
	Dir       string        `yaml:"dir"`
	Steps     []Step        `yaml:"steps"`
	Artifacts []FileMapping `yaml:"artifacts"` // From is relative to Dir, To relative to lib_dir
}

// FetchSpec is the network half of a dependency; it runs under the retry policy.
type FetchSpec struct {
	Kind FetchKind `yaml:"kind"`
	URL  string    `yaml:"url"`
	Ref  string    `yaml:"ref,omitempty"`
}

// Step is one local build command, run in the dependency directory. Failure is fatal.
type Step struct {
	Run []string          `yaml:"run"`
	Env map[string]string `yaml:"env,omitempty"`
}

// FileMapping copies From to To.
type FileMapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ToolchainConfig describes the control-plane language toolchain installer.
type ToolchainConfig struct {
	InstallerURL  string   `yaml:"installer_url"`
	InstallerArgs []string `yaml:"installer_args"`
	Skip          bool     `yaml:"skip"`
}

// BuildConfig configures the two component builds.
type BuildConfig struct {
	Tunnel       TunnelBuildConfig       `yaml:"tunnel"`
	ControlPlane ControlPlaneBuildConfig `yaml:"control_plane"`
}

// TunnelBuildConfig drives the autotools build of the tunneling daemon.
type TunnelBuildConfig struct {
	ConfigureArgs []string `yaml:"configure_args"`
	RPath         string   `yaml:"rpath"`    // runtime library search path baked into the binaries
	Binaries      []string `yaml:"binaries"` // relative to the checkout, copied into tunnel_out
}

// ControlPlaneBuildConfig drives the release build of the control plane.
type ControlPlaneBuildConfig struct {
	OpenSSLDir      string   `yaml:"openssl_dir"`
	OpenSSLStatic   bool     `yaml:"openssl_static"`
	UpdateToolchain bool     `yaml:"update_toolchain"`
	Binaries        []string `yaml:"binaries"` // relative to the checkout
}

// PackageConfig describes the package tree and the archive built from it.
type PackageConfig struct {
	Skeleton []string      `yaml:"skeleton"` // directories relative to package_root
	Files    []FileMapping `yaml:"files"`    // To relative to package_root
	Trees    []FileMapping `yaml:"trees"`    // recursive copies, To relative to package_root
	Archive  string        `yaml:"archive"`
	Builder  []string      `yaml:"builder"`
}

// MetricsConfig controls the Prometheus text-file export. An empty path disables it.
type MetricsConfig struct {
	TextFile string `yaml:"textfile"`
}

// HistoryConfig controls the SQLite run journal.
type HistoryConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"`
}

// NotifyConfig controls the optional NATS notification sent when a run ends.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}
