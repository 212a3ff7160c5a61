package authstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	domerrors "whatsam/internal/domain/errors"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"
)

const (
	sessionPrefix    = "sessions/"
	mediaPrefix      = "media/"
	mediaURLLifetime = time.Hour
)

// Store persists per-session auth material to the local filesystem and
// mirrors it to the remote object store with copy-on-transition
// semantics: Snapshot on connect and graceful shutdown, Restore on
// recovery, Purge on logout.
type Store struct {
	local  *localStore
	remote *remoteStore
	log    logger.Logger
}

var _ repository.AuthStore = (*Store)(nil)

// New builds the store and verifies the remote side by ensuring the
// buckets exist.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*Store, error) {
	remote, err := newRemoteStore(cfg.Store, log)
	if err != nil {
		return nil, domerrors.ErrAuthStoreFailed.WithCause(err)
	}
	if err := remote.ensureBuckets(ctx); err != nil {
		return nil, domerrors.ErrAuthStoreFailed.WithCause(err)
	}

	return &Store{
		local:  newLocalStore(cfg.WhatsApp.SessionPath),
		remote: remote,
		log:    log.WithComponent("authstore"),
	}, nil
}

// EnsureLocal returns the session's local auth directory, creating it if
// missing.
func (s *Store) EnsureLocal(sessionID string) (string, error) {
	dir, err := s.local.ensure(sessionID)
	if err != nil {
		return "", domerrors.ErrAuthStoreFailed.WithCause(err)
	}
	return dir, nil
}

// HasLocal reports whether the session has local auth material.
func (s *Store) HasLocal(sessionID string) bool {
	return s.local.has(sessionID)
}

// Snapshot copies every file under the local session directory to the
// remote store under sessions/<sessionID>/<file>.
func (s *Store) Snapshot(ctx context.Context, sessionID string) error {
	files, err := s.local.files(sessionID)
	if err != nil {
		return domerrors.ErrAuthStoreFailed.WithCause(err)
	}
	if len(files) == 0 {
		return nil
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return domerrors.ErrAuthStoreFailed.WithCause(err)
		}
		object := sessionPrefix + sessionID + "/" + filepath.Base(path)
		if err := s.remote.upload(ctx, s.remote.cfg.BucketSessions, object, data, "application/octet-stream"); err != nil {
			return domerrors.ErrAuthStoreFailed.WithCause(err)
		}
	}

	s.log.Info("auth snapshot uploaded",
		logger.String("session_id", sessionID),
		logger.Int("files", len(files)))
	return nil
}

// Restore downloads the remote sessions/<sessionID>/ prefix into the
// local directory. Idempotent: existing local files skip the download.
func (s *Store) Restore(ctx context.Context, sessionID string) error {
	if s.local.has(sessionID) {
		s.log.Debug("local auth present, skipping restore",
			logger.String("session_id", sessionID))
		return nil
	}

	objects, err := s.remote.list(ctx, s.remote.cfg.BucketSessions, sessionPrefix+sessionID+"/")
	if err != nil {
		return domerrors.ErrAuthStoreFailed.WithCause(err)
	}
	if len(objects) == 0 {
		// Fresh session; it will fall through to QR pairing.
		return nil
	}

	dir, err := s.local.ensure(sessionID)
	if err != nil {
		return domerrors.ErrAuthStoreFailed.WithCause(err)
	}

	for _, object := range objects {
		data, err := s.remote.download(ctx, s.remote.cfg.BucketSessions, object)
		if err != nil {
			return domerrors.ErrAuthStoreFailed.WithCause(err)
		}
		target := filepath.Join(dir, filepath.Base(object))
		if err := os.WriteFile(target, data, 0o600); err != nil {
			return domerrors.ErrAuthStoreFailed.WithCause(err)
		}
	}

	s.log.Info("auth restored from remote store",
		logger.String("session_id", sessionID),
		logger.Int("files", len(objects)))
	return nil
}

// Purge deletes local files then remote objects for the session. Both
// steps are best-effort; the returned error aggregates failures.
func (s *Store) Purge(ctx context.Context, sessionID string) error {
	var errs []error

	if err := s.local.purge(sessionID); err != nil {
		errs = append(errs, fmt.Errorf("local: %w", err))
	}

	objects, err := s.remote.list(ctx, s.remote.cfg.BucketSessions, sessionPrefix+sessionID+"/")
	if err != nil {
		errs = append(errs, fmt.Errorf("remote list: %w", err))
	} else {
		for _, object := range objects {
			if err := s.remote.remove(ctx, s.remote.cfg.BucketSessions, object); err != nil {
				errs = append(errs, fmt.Errorf("remote: %w", err))
			}
		}
	}

	if len(errs) > 0 {
		return domerrors.ErrAuthStoreFailed.WithCause(errors.Join(errs...))
	}
	return nil
}

// UploadMedia stores an outbound attachment under
// media/<sessionID>/<timestamp>-<file> and returns a presigned GET URL
// valid for one hour.
func (s *Store) UploadMedia(ctx context.Context, sessionID, fileName string, data []byte, contentType string) (string, error) {
	object := fmt.Sprintf("%s%s/%d-%s", mediaPrefix, sessionID, time.Now().UnixMilli(), fileName)
	if err := s.remote.upload(ctx, s.remote.cfg.BucketMedia, object, data, contentType); err != nil {
		return "", domerrors.ErrAuthStoreFailed.WithCause(err)
	}
	return s.remote.presignedGet(ctx, s.remote.cfg.BucketMedia, object, mediaURLLifetime)
}

// Healthy reports whether the remote store answers.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.remote.healthy(ctx)
}
