package repository

import (
	"context"

	"whatsam/internal/domain/entity"
)

// StatusNotifier mirrors session-state transitions to interested parties
// (backend webhooks, live stream subscribers). Implementations must be
// fire-and-forget: a failed delivery is logged, never propagated into the
// lifecycle.
type StatusNotifier interface {
	NotifySessionStatus(event entity.SessionStatusEvent)
	NotifyMessageStatus(event entity.MessageStatusEvent)
}

// RegistryClient talks to the control-plane backend on behalf of this
// worker: registration, heartbeat, assignment fetch, recovery reporting
// and unregistration.
type RegistryClient interface {
	StatusNotifier

	// Register announces the worker to the backend, retrying with fixed
	// back-off. Returns the backend's recovery directive.
	Register(ctx context.Context) (*entity.RegistrationResult, error)

	// StartHeartbeat begins the periodic heartbeat loop; it stops when the
	// context is cancelled.
	StartHeartbeat(ctx context.Context)

	// FetchAssignments returns the sessions this worker must resume. A 404
	// from the backend means none.
	FetchAssignments(ctx context.Context) ([]entity.Assignment, error)

	// ReportRecovery posts per-session recovery outcomes and summary counts.
	ReportRecovery(ctx context.Context, report *entity.RecoveryReport) error

	// Unregister removes the worker from the backend on shutdown. Failures
	// are logged, never returned as fatal.
	Unregister(ctx context.Context) error

	// Enabled reports whether backend coupling is configured (false in
	// standalone mode).
	Enabled() bool
}

// SessionLister exposes cross-task read access to the engine's session
// collection for heartbeat payloads and the list endpoint.
type SessionLister interface {
	List() []entity.Snapshot
	Statistics() entity.Statistics
}
