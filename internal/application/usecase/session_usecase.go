package usecase

import (
	"context"

	"whatsam/internal/application/engine"
	"whatsam/internal/domain/entity"
)

// SessionUseCase is the thin application surface over the lifecycle
// engine; the HTTP boundary talks to this, never to the engine directly.
type SessionUseCase struct {
	engine *engine.Engine
}

// NewSessionUseCase creates a new SessionUseCase
func NewSessionUseCase(eng *engine.Engine) *SessionUseCase {
	return &SessionUseCase{engine: eng}
}

// Start resumes or creates a session.
func (uc *SessionUseCase) Start(ctx context.Context, sessionID, userID, name string) (entity.Snapshot, error) {
	return uc.engine.Start(ctx, sessionID, userID, name)
}

// CreateStrict creates a session, surfacing the already-exists conflict
// instead of resuming.
func (uc *SessionUseCase) CreateStrict(ctx context.Context, sessionID, userID, name string) (entity.Snapshot, error) {
	return uc.engine.Create(ctx, sessionID, userID, name, false)
}

// Status returns the session snapshot.
func (uc *SessionUseCase) Status(sessionID string) (entity.Snapshot, error) {
	return uc.engine.GetStatus(sessionID)
}

// QR returns the active pairing challenge.
func (uc *SessionUseCase) QR(sessionID string) (*entity.QRChallenge, error) {
	return uc.engine.QR(sessionID)
}

// Restart recreates the protocol instance, preserving auth.
func (uc *SessionUseCase) Restart(ctx context.Context, sessionID string) error {
	return uc.engine.Restart(ctx, sessionID)
}

// Disconnect closes the socket and parks the session.
func (uc *SessionUseCase) Disconnect(ctx context.Context, sessionID string) error {
	return uc.engine.Disconnect(ctx, sessionID)
}

// Logout invalidates the device and purges auth.
func (uc *SessionUseCase) Logout(ctx context.Context, sessionID string) error {
	return uc.engine.Logout(ctx, sessionID)
}

// Delete removes the session entirely.
func (uc *SessionUseCase) Delete(ctx context.Context, sessionID string) error {
	return uc.engine.Delete(ctx, sessionID)
}

// List returns every session snapshot.
func (uc *SessionUseCase) List() []entity.Snapshot {
	return uc.engine.List()
}

// Statistics returns counts per status bucket.
func (uc *SessionUseCase) Statistics() entity.Statistics {
	return uc.engine.Statistics()
}
