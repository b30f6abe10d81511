package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/schollz/progressbar/v3"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
)

// downloader fetches one URL per call. A single call is one attempt; the caller retries.
type downloader struct {
	client   *http.Client
	progress io.Writer // nil disables the progress bar
	logger   *slog.Logger
}

// fetch downloads url to dst, replacing dst atomically on success.
func (d *downloader) fetch(ctx context.Context, url, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryConfig, "invalid download url").
			WithContext("url", url).
			Build()
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.WrapError(err, errors.CategoryNetwork, "download request failed").
			Retryable().
			WithContext("url", url).
			Build()
	}
	defer resp.Body.Close()

	if err := statusError(url, resp.StatusCode); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, errors.WrapError(err, errors.CategoryFileSystem, "create download directory").
			WithContext("path", dst).
			Build()
	}
	out, err := renameio.TempFile("", dst)
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryFileSystem, "create download file").
			WithContext("path", dst).
			Build()
	}
	defer out.Cleanup()

	var sink io.Writer = out
	var bar *progressbar.ProgressBar
	if d.progress != nil {
		bar = newProgressBar(d.progress, resp.ContentLength, "downloading "+path.Base(url))
		sink = io.MultiWriter(out, bar)
	}
	n, err := io.Copy(sink, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, errors.WrapError(err, errors.CategoryNetwork, "download interrupted").
			Retryable().
			WithContext("url", url).
			WithContext("bytes", n).
			Build()
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return n, errors.WrapError(err, errors.CategoryFileSystem, "finalize download").
			WithContext("path", dst).
			Build()
	}
	d.logger.Info("Downloaded", logfields.URL(url), logfields.Path(dst), logfields.Size(n))
	return n, nil
}

// statusError maps an HTTP status to a classified error; nil for 2xx.
func statusError(url string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	msg := fmt.Sprintf("download failed: HTTP %d", code)
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return errors.NewError(errors.CategoryNotFound, msg).WithContext("url", url).Build()
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.NewError(errors.CategoryAuth, msg).UserAction().WithContext("url", url).Build()
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		return errors.NetworkError(msg).WithContext("url", url).Build()
	default:
		return errors.NewError(errors.CategoryNetwork, msg).WithContext("url", url).Build()
	}
}

func newProgressBar(w io.Writer, size int64, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)
}
