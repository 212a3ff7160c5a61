package recovery

import (
	"context"
	"time"

	"whatsam/internal/application/engine"
	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"
)

// Coordinator restores this worker's assigned sessions at cold start and
// preserves them at graceful shutdown. It runs once per direction; the
// backend's assignment list is the single source of truth for what to
// resume.
type Coordinator struct {
	engine   *engine.Engine
	store    repository.AuthStore
	registry repository.RegistryClient
	cfg      config.RecoveryConfig
	workerID string
	log      logger.Logger
}

// New creates the coordinator.
func New(eng *engine.Engine, store repository.AuthStore, registry repository.RegistryClient,
	cfg *config.Config, log logger.Logger) *Coordinator {
	return &Coordinator{
		engine:   eng,
		store:    store,
		registry: registry,
		cfg:      cfg.Recovery,
		workerID: cfg.Worker.ID,
		log:      log.WithComponent("recovery"),
	}
}

// Run executes cold-start recovery: fetch assignments, restore auth for
// each, recreate the sessions, and report the aggregate back. Individual
// failures are recorded per session; recovery itself always completes.
func (c *Coordinator) Run(ctx context.Context) {
	if !c.cfg.Enabled || !c.registry.Enabled() {
		return
	}

	if c.cfg.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.StartupDelay):
		}
	}

	assignments, err := c.registry.FetchAssignments(ctx)
	if err != nil {
		c.log.Error("assignment fetch failed, skipping recovery", logger.Err(err))
		return
	}
	if len(assignments) == 0 {
		c.log.Info("no sessions assigned, nothing to recover")
		return
	}

	report := &entity.RecoveryReport{WorkerID: c.workerID, Timestamp: time.Now()}

	for _, assignment := range assignments {
		report.Record(c.recoverOne(ctx, assignment))
	}

	c.log.Info("recovery complete",
		logger.Int("recovered", report.Recovered),
		logger.Int("failed", report.Failed),
		logger.Int("skipped", report.Skipped))

	if err := c.registry.ReportRecovery(ctx, report); err != nil {
		c.log.Warn("recovery report failed", logger.Err(err))
	}
}

// recoverOne restores and recreates a single assigned session.
func (c *Coordinator) recoverOne(ctx context.Context, assignment entity.Assignment) entity.RecoveryOutcome {
	outcome := entity.RecoveryOutcome{
		SessionID: assignment.SessionID,
		UserID:    assignment.UserID,
		Timestamp: time.Now(),
	}

	if _, err := c.engine.GetStatus(assignment.SessionID); err == nil {
		outcome.Result = entity.RecoverySkipped
		outcome.Error = "session already present"
		return outcome
	}

	if !assignment.Recoverable() {
		outcome.Result = entity.RecoverySkipped
		outcome.Error = "prior status not recoverable: " + string(assignment.Status)
		return outcome
	}

	// Best-effort: a fresh session without credentials falls through to QR.
	if err := c.store.Restore(ctx, assignment.SessionID); err != nil {
		c.log.Warn("auth restore failed, session will re-pair",
			logger.String("session_id", assignment.SessionID),
			logger.Err(err))
	}

	if _, err := c.engine.Create(ctx, assignment.SessionID, assignment.UserID, "", true); err != nil {
		outcome.Result = entity.RecoveryFailed
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Result = entity.RecoveryRecovered
	return outcome
}

// Preserve is the graceful-shutdown counterpart: snapshot auth for every
// session worth resuming elsewhere and tell the backend which ones were
// preserved.
func (c *Coordinator) Preserve(ctx context.Context) {
	report := &entity.RecoveryReport{WorkerID: c.workerID, Timestamp: time.Now()}

	for _, snap := range c.engine.List() {
		switch snap.Status {
		case entity.StatusConnected, entity.StatusQRReady:
		default:
			continue
		}

		outcome := entity.RecoveryOutcome{
			SessionID: snap.ID,
			UserID:    snap.UserID,
			Result:    entity.RecoveryPreserved,
			Timestamp: time.Now(),
		}
		if err := c.store.Snapshot(ctx, snap.ID); err != nil {
			outcome.Result = entity.RecoveryFailed
			outcome.Error = err.Error()
			c.log.Warn("preservation snapshot failed",
				logger.String("session_id", snap.ID),
				logger.Err(err))
		}
		report.Record(outcome)
	}

	if len(report.Outcomes) == 0 {
		return
	}

	c.log.Info("sessions preserved",
		logger.Int("preserved", report.Preserved),
		logger.Int("failed", report.Failed))

	if c.registry.Enabled() {
		if err := c.registry.ReportRecovery(ctx, report); err != nil {
			c.log.Warn("preservation report failed", logger.Err(err))
		}
	}
}
