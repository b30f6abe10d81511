package metrics

import (
	"os"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
)

// WriteTextFile writes every metric gathered from g to path in the text
// exposition format. The file is replaced atomically.
func WriteTextFile(path string, g prom.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create metrics directory").
			WithContext("path", path).
			Build()
	}
	if err := prom.WriteToTextfile(path, g); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write metrics text file").
			WithContext("path", path).
			Build()
	}
	return nil
}
