package cargohold

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cargohold/cargohold/cloud"
	"github.com/cargohold/cargohold/internal/metrics"
)

// FlushWrites uploads every queued (style, file) entry. The queue is
// cleared and the AfterFlushWrites hook invoked only when every entry
// succeeds; the first failure aborts the batch with entries already
// written staying written. Each entry's file handle is rewound whether
// its upload succeeded or not.
//
// An upload failing because the container does not exist triggers one
// container creation and one retry; a second container-missing failure
// for the same entry is fatal.
func (s *Storage) FlushWrites(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.FlushDuration.WithLabelValues("writes").Observe(time.Since(start).Seconds())
	}()

	for _, entry := range s.queuedWrites {
		if err := s.uploadEntry(ctx, entry); err != nil {
			metrics.UploadFailuresTotal.Inc()
			return err
		}
	}

	s.queuedWrites = nil
	if s.opts.AfterFlushWrites != nil {
		s.opts.AfterFlushWrites()
	}
	return nil
}

// uploadEntry writes one queue entry, driving the bounded retry:
// Attempting -> (container missing) -> CreatedContainer -> Attempting ->
// Succeeded | Failed. The transition through CreatedContainer is taken at
// most once.
func (s *Storage) uploadEntry(ctx context.Context, entry writeEntry) (err error) {
	// The handle is rewound on every exit path so the framework gets its
	// temporary file back in a usable state.
	defer func() {
		if _, serr := entry.file.Seek(0, io.SeekStart); serr != nil && err == nil {
			err = fmt.Errorf("rewinding %q upload: %w", entry.style, serr)
		}
	}()

	container, err := s.Container(ctx)
	if err != nil {
		return err
	}
	key := s.att.Path(entry.style)
	opts := cloud.PutOptions{
		ContentType: entry.file.ContentType(),
		Public:      s.opts.Public.Resolve(entry.style),
		Metadata:    s.ExtraUploadFields(),
	}

	createdContainer := false
	for {
		if _, err := entry.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding %q upload: %w", entry.style, err)
		}

		putErr := container.Put(ctx, key, entry.file, opts)
		if putErr == nil {
			metrics.UploadsTotal.Inc()
			slog.Debug("Uploaded object", "style", entry.style, "key", key, "container", container.Name())
			return nil
		}
		if errors.Is(putErr, cloud.ErrContainerNotFound) && !createdContainer {
			createdContainer = true
			conn, connErr := s.connection(ctx)
			if connErr != nil {
				return connErr
			}
			if createErr := conn.CreateContainer(ctx, container.Name()); createErr != nil {
				return createErr
			}
			metrics.UploadRetriesTotal.Inc()
			slog.Info("Created missing container, retrying upload", "container", container.Name(), "key", key)
			continue
		}
		return putErr
	}
}

// FlushDeletes destroys every queued storage key, in queue order, with no
// retry. The first failure aborts the batch and keeps the remaining keys
// queued; keys already processed stay deleted.
func (s *Storage) FlushDeletes(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.FlushDuration.WithLabelValues("deletes").Observe(time.Since(start).Seconds())
	}()

	if len(s.queuedDeletes) == 0 {
		return nil
	}

	container, err := s.Container(ctx)
	if err != nil {
		return err
	}

	for _, key := range s.queuedDeletes {
		if err := container.Delete(ctx, key); err != nil {
			metrics.DeleteFailuresTotal.Inc()
			return err
		}
		metrics.DeletesTotal.Inc()
		slog.Debug("Deleted object", "key", key, "container", container.Name())
	}

	s.queuedDeletes = nil
	return nil
}
