package cargohold

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/cargohold/cargohold/internal/metrics"
)

// CopyToLocal downloads the object for the given style to localPath.
// Storage failures are not propagated: they are logged and reported as a
// false return, with the destination handle closed. Returns true when the
// destination holds the complete object body.
func (s *Storage) CopyToLocal(ctx context.Context, style, localPath string) bool {
	dst, err := os.Create(localPath)
	if err != nil {
		slog.Warn("Cannot open local copy destination", "path", localPath, "error", err)
		metrics.LocalCopiesTotal.WithLabelValues("failure").Inc()
		return false
	}

	ok := s.copyBody(ctx, style, dst)
	if cerr := dst.Close(); cerr != nil && ok {
		slog.Warn("Closing local copy destination failed", "path", localPath, "error", cerr)
		ok = false
	}

	if ok {
		metrics.LocalCopiesTotal.WithLabelValues("success").Inc()
	} else {
		metrics.LocalCopiesTotal.WithLabelValues("failure").Inc()
	}
	return ok
}

// copyBody streams the remote object into w, reporting failure instead of
// raising it.
func (s *Storage) copyBody(ctx context.Context, style string, w io.Writer) bool {
	container, err := s.Container(ctx)
	if err != nil {
		slog.Warn("Cannot resolve container for local copy", "style", style, "error", err)
		return false
	}

	key := s.att.Path(style)
	body, err := container.Get(ctx, key)
	if err != nil {
		slog.Warn("Cannot fetch object for local copy", "style", style, "key", key, "error", err)
		return false
	}
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("Writing local copy failed", "style", style, "key", key, "error", err)
		return false
	}
	return true
}
