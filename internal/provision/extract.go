package provision

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// extractTarball unpacks archive into dest, dropping the leading path component
// of every entry (tar --strip-components=1). format is "gz" or "xz".
func extractTarball(archive, format, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case "gz":
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader for %s: %w", archive, err)
		}
		defer gz.Close()
		r = gz
	case "xz":
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader for %s: %w", archive, err)
		}
		r = xzr
	default:
		return fmt.Errorf("unsupported archive format %q", format)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	root, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return err
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", archive, err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name := stripFirst(hdr.Name)
		if name == "" {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry %q escapes the destination", hdr.Name)
		}
		target := filepath.Join(dest, name)
		// A symlink entry replaces target itself, so only its parent must stay inside.
		check := target
		if hdr.Typeflag == tar.TypeSymlink {
			check = filepath.Dir(target)
		}
		if err := resolvesInside(root, check); err != nil {
			return fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) || !filepath.IsLocal(filepath.Join(filepath.Dir(name), hdr.Linkname)) {
				return fmt.Errorf("archive symlink %q -> %q escapes the destination", hdr.Name, hdr.Linkname)
			}
			if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			linked := stripFirst(hdr.Linkname)
			if !filepath.IsLocal(linked) {
				return fmt.Errorf("archive hard link %q escapes the destination", hdr.Linkname)
			}
			if err := resolvesInside(root, filepath.Join(dest, linked)); err != nil {
				return fmt.Errorf("archive hard link %q: %w", hdr.Name, err)
			}
			if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.Link(filepath.Join(dest, linked), target); err != nil {
				return err
			}
		}
	}
}

// resolvesInside fails when p, or its deepest existing ancestor, resolves through
// a symlink to a location outside root. root must already be resolved.
func resolvesInside(root, p string) error {
	for dir := p; ; {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			rel, err := filepath.Rel(root, resolved)
			if err != nil || (rel != "." && !filepath.IsLocal(rel)) {
				return fmt.Errorf("path %s resolves outside the destination", p)
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func writeEntry(r io.Reader, target string, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return out.Close()
}

func stripFirst(name string) string {
	name = strings.TrimPrefix(name, "./")
	_, rest, found := strings.Cut(name, "/")
	if !found {
		return ""
	}
	return strings.TrimSuffix(rest, "/")
}
