package repository

import "context"

// AuthStore persists per-session credentials and keys to a local
// filesystem path mirrored to a remote object store. The local directory
// either fully exists (recoverable session) or is absent (fresh).
type AuthStore interface {
	// EnsureLocal returns the session's local auth directory, creating it
	// if missing.
	EnsureLocal(sessionID string) (string, error)

	// HasLocal reports whether the session has local auth material.
	HasLocal(sessionID string) bool

	// Snapshot copies every file under the local session directory to the
	// remote store under sessions/<sessionID>/<file>.
	Snapshot(ctx context.Context, sessionID string) error

	// Restore downloads the remote sessions/<sessionID>/ prefix into the
	// local directory. Idempotent: existing local files skip the download.
	Restore(ctx context.Context, sessionID string) error

	// Purge deletes local files then remote objects for the session. Both
	// steps are best-effort; the returned error aggregates failures.
	Purge(ctx context.Context, sessionID string) error

	// UploadMedia stores an outbound attachment under
	// media/<sessionID>/<timestamp>-<file> and returns a presigned GET URL
	// valid for one hour.
	UploadMedia(ctx context.Context, sessionID, fileName string, data []byte, contentType string) (string, error)

	// Healthy reports whether the remote store answers.
	Healthy(ctx context.Context) bool
}
