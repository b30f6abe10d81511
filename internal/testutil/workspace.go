package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/pgzip"

	"git.home.luguber.info/inful/meshpack/internal/config"
)

// Mirror paths served by the workspace HTTP server.
const (
	ReadlineArchivePath = "/readline-8.0.tar.gz"
	InstallerPath       = "/rustup-init.sh"
)

// Workspace is a staging root under t.TempDir() with a resolved configuration.
type Workspace struct {
	Root   string
	Config *config.Config
	Mirror *Mirror
}

// Mirror is an httptest server serving the readline tarball and the toolchain installer.
type Mirror struct {
	*httptest.Server

	mu     sync.Mutex
	hits   map[string]int
	fails  map[string]int
	bodies map[string][]byte
}

// Serve replaces the content served for path.
func (m *Mirror) Serve(path string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[path] = body
}

// FailNext makes the next n requests for path answer 503.
func (m *Mirror) FailNext(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails[path] = n
}

// Hits returns how many requests path received.
func (m *Mirror) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

func newMirror(t testing.TB) *Mirror {
	t.Helper()
	tarball := ReadlineTarball(t)
	m := &Mirror{hits: map[string]int{}, fails: map[string]int{}, bodies: map[string][]byte{}}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.hits[r.URL.Path]++
		fail := m.fails[r.URL.Path] > 0
		if fail {
			m.fails[r.URL.Path]--
		}
		body, replaced := m.bodies[r.URL.Path]
		m.mu.Unlock()
		if fail {
			http.Error(w, "mirror busy", http.StatusServiceUnavailable)
			return
		}
		if replaced {
			_, _ = w.Write(body)
			return
		}
		switch r.URL.Path {
		case ReadlineArchivePath:
			w.Header().Set("Content-Length", fmt.Sprint(len(tarball)))
			_, _ = w.Write(tarball)
		case InstallerPath:
			_, _ = w.Write([]byte("#!/bin/sh\necho installing toolchain\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(m.Close)
	return m
}

// ReadlineTarball returns a gzip tarball with a single top-level readline-8.0/ directory.
func ReadlineTarball(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	entries := []struct {
		name string
		mode int64
		body string
	}{
		{"readline-8.0/", 0o755, ""},
		{"readline-8.0/configure", 0o644, "#!/bin/sh\n"},
		{"readline-8.0/readline.h", 0o644, "/* readline */\n"},
		{"readline-8.0/shlib/", 0o755, ""},
	}
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.name[len(e.name)-1] == '/' {
			hdr.Typeflag = tar.TypeDir
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(e.body)); err != nil {
			t.Fatalf("tar body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

const workspaceConfig = `
paths:
  root: %[1]s
  publish_dir: %[1]s/publish
sources:
  tunnel:
    url: https://example.invalid/tinc.git
  control_plane:
    url: https://example.invalid/dnetnode.git
provision:
  host_libs:
    - source: %[1]s/host/liblzo2.so
      soname: liblzo2.so.2
    - source: %[1]s/host/libncurses.so.5.9
      soname: libncurses.so.5
      optional: true
  dependencies:
    - name: openssl
      fetch:
        kind: git
        url: https://example.invalid/openssl.git
        ref: OpenSSL_1_1_1c
      steps:
        - run: [./config, shared]
        - run: [make, install]
      artifacts:
        - {from: libssl.so.1.1, to: libssl.so.1.1}
        - {from: libcrypto.so.1.1, to: libcrypto.so.1.1}
    - name: readline
      fetch:
        kind: archive
        url: %[2]s%[3]s
      dir: ${ROOT}/readline-8.0
      steps:
        - run: [./configure, --enable-shared]
        - run: [make]
        - run: [make, install]
      artifacts:
        - {from: shlib/libreadline.so.8.0, to: libreadline.so.8}
  toolchain:
    installer_url: %[2]s%[4]s
retry:
  initial_delay: 1ms
  max_delay: 1ms
  max_retries: 2
history:
  disabled: true
`

// NewWorkspace creates a staging root with both host libraries present and a
// mirror for downloads.
func NewWorkspace(t testing.TB) *Workspace {
	t.Helper()
	root := t.TempDir()
	mirror := newMirror(t)

	for _, lib := range []string{"liblzo2.so", "libncurses.so.5.9"} {
		if err := WriteFile(filepath.Join(root, "host", lib), "host library "+lib); err != nil {
			t.Fatalf("host lib: %v", err)
		}
	}

	cfg, err := config.Parse([]byte(fmt.Sprintf(workspaceConfig, root, mirror.URL, ReadlineArchivePath, InstallerPath)))
	if err != nil {
		t.Fatalf("workspace config: %v", err)
	}
	return &Workspace{Root: root, Config: cfg, Mirror: mirror}
}

// Files returns a FileAssertions helper rooted at the workspace root.
func (w *Workspace) Files(t testing.TB) *FileAssertions {
	return NewFileAssertions(t, w.Root)
}

// WriteFile creates parent directories and writes content to path.
func WriteFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o755)
}
