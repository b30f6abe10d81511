package assemble

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"lukechampine.com/blake3"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

// DigestSuffix is appended to the published archive name for its digest file.
const DigestSuffix = ".b3"

// Publish copies archive into dir atomically and writes "<digest>  <name>" to
// the digest file beside it. A reader never observes a partially written archive.
func Publish(archive, dir string) (*models.PublishedPackage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, publishError(err, "create publish directory", dir)
	}
	in, err := os.Open(archive)
	if err != nil {
		return nil, publishError(err, "open archive", archive)
	}
	defer in.Close()

	name := filepath.Base(archive)
	dst := filepath.Join(dir, name)
	out, err := renameio.TempFile("", dst)
	if err != nil {
		return nil, publishError(err, "create published archive", dst)
	}
	defer out.Cleanup()

	h := blake3.New(32, nil)
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err != nil {
		return nil, publishError(err, "copy archive", dst)
	}
	if err := out.Chmod(0o644); err != nil {
		return nil, publishError(err, "set archive mode", dst)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return nil, publishError(err, "replace published archive", dst)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	digestPath := dst + DigestSuffix
	if err := renameio.WriteFile(digestPath, []byte(digest+"  "+name+"\n"), 0o644); err != nil {
		return nil, publishError(err, "write digest file", digestPath)
	}
	return &models.PublishedPackage{
		Archive:    archive,
		Path:       dst,
		DigestPath: digestPath,
		Digest:     digest,
		Size:       n,
	}, nil
}

// Digest returns the hex BLAKE3 digest of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks a published archive against its digest file.
func Verify(path string) (string, error) {
	data, err := os.ReadFile(path + DigestSuffix)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryNotFound, "read digest file").
			WithContext("path", path+DigestSuffix).
			Build()
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", errors.ValidationError("empty digest file").WithContext("path", path+DigestSuffix).Build()
	}
	got, err := Digest(path)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "hash archive").
			WithContext("path", path).
			Build()
	}
	if got != fields[0] {
		return got, errors.ValidationError(fmt.Sprintf("digest mismatch: want %s, got %s", fields[0], got)).
			WithContext("path", path).
			Build()
	}
	return got, nil
}

func publishError(err error, msg, path string) error {
	return errors.WrapError(err, errors.CategoryFileSystem, msg).
		WithContext("path", path).
		Build()
}
