package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/errors"
	"whatsam/internal/domain/repository"
	"whatsam/internal/domain/valueobject"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"
)

// Config holds the engine's lifecycle knobs.
type Config struct {
	MaxQRAttempts        int
	QRTimeout            time.Duration
	QRTerminalTimeout    time.Duration
	AutoDisconnectGrace  time.Duration
	ReconnectInterval    time.Duration
	RecoveredReconnect   time.Duration
	TimedOutReconnect    time.Duration
	MaxReconnectAttempts int
	QueryTimeout         time.Duration
	BulkMessageDelay     time.Duration
	BulkMaxMessages      int
}

// ConfigFrom extracts the engine knobs from the process configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxQRAttempts:        cfg.WhatsApp.MaxQRAttempts,
		QRTimeout:            cfg.WhatsApp.QRTimeout,
		QRTerminalTimeout:    cfg.WhatsApp.QRTerminalTimeout,
		AutoDisconnectGrace:  cfg.WhatsApp.AutoDisconnectGrace,
		ReconnectInterval:    cfg.WhatsApp.ReconnectInterval,
		RecoveredReconnect:   cfg.WhatsApp.RecoveredReconnect,
		TimedOutReconnect:    cfg.WhatsApp.TimedOutReconnect,
		MaxReconnectAttempts: cfg.WhatsApp.MaxReconnectAttempts,
		QueryTimeout:         cfg.WhatsApp.QueryTimeout,
		BulkMessageDelay:     cfg.WhatsApp.BulkMessageDelay,
		BulkMaxMessages:      cfg.WhatsApp.BulkMaxMessages,
	}
}

// Observer receives engine-level measurements. The Prometheus collector
// implements it; a nil observer disables measurement.
type Observer interface {
	SessionTransition(sessionID string, from, to entity.Status)
	ReconnectScheduled(sessionID string)
	MessageSent(sessionID string, took time.Duration)
}

// Engine is the session lifecycle engine: a keyed collection of sessions,
// each driven by its own task. All session mutation happens on the owning
// task; cross-task reads go through the engine's RWMutex.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*runtime
	qrs      map[string]*entity.QRChallenge

	factory  repository.ProtocolFactory
	store    repository.AuthStore
	notifier repository.StatusNotifier
	pacer    *Pacer
	observer Observer
	cfg      Config
	log      logger.Logger
}

var _ repository.SessionLister = (*Engine)(nil)

// New creates the engine. The notifier and observer may be nil; a nil one
// is skipped.
func New(cfg Config, factory repository.ProtocolFactory, store repository.AuthStore,
	notifier repository.StatusNotifier, observer Observer, log logger.Logger) *Engine {
	return &Engine{
		sessions: make(map[string]*runtime),
		qrs:      make(map[string]*entity.QRChallenge),
		factory:  factory,
		store:    store,
		notifier: notifier,
		pacer:    NewPacer(log),
		observer: observer,
		cfg:      cfg,
		log:      log.WithComponent("engine"),
	}
}

// Start is the idempotent resume-or-create entry point. An existing
// session that is live returns its current snapshot; a parked one
// (DISCONNECTED, FAILED, LOGGED_OUT, AUTO_DISCONNECTED) is restarted;
// otherwise a new session is created.
func (e *Engine) Start(ctx context.Context, sessionID, userID, name string) (entity.Snapshot, error) {
	if err := valueobject.ValidateSessionID(sessionID); err != nil {
		return entity.Snapshot{}, err
	}

	e.mu.RLock()
	rt, exists := e.sessions[sessionID]
	e.mu.RUnlock()

	if exists {
		snap := e.snapshot(rt)
		switch snap.Status {
		case entity.StatusConnected, entity.StatusInitializing,
			entity.StatusQRReady, entity.StatusReconnecting:
			return snap, nil
		default:
			// Auth preserved (or gone - the restart falls through to QR).
			if err := rt.post(ctx, command{kind: cmdRestart}); err != nil {
				return entity.Snapshot{}, err
			}
			return e.snapshot(rt), nil
		}
	}

	return e.Create(ctx, sessionID, userID, name, false)
}

// Create builds a brand-new session and its task. Concurrent creates for
// the same id fail fast with an already-exists condition.
func (e *Engine) Create(ctx context.Context, sessionID, userID, name string, isRecovery bool) (entity.Snapshot, error) {
	if err := valueobject.ValidateSessionID(sessionID); err != nil {
		return entity.Snapshot{}, err
	}

	sess := entity.NewSession(sessionID, userID, name)
	sess.IsRecovered = isRecovery

	e.mu.Lock()
	if _, exists := e.sessions[sessionID]; exists {
		e.mu.Unlock()
		return entity.Snapshot{}, errors.ErrSessionExists
	}
	rt := newRuntime(e, sess)
	e.sessions[sessionID] = rt
	e.mu.Unlock()

	if err := rt.boot(ctx); err != nil {
		// Roll back all partial state; a pre-existing auth dir stays.
		e.mu.Lock()
		delete(e.sessions, sessionID)
		delete(e.qrs, sessionID)
		e.mu.Unlock()
		rt.stop()
		return entity.Snapshot{}, err
	}

	eventType := entity.EventSessionCreated
	if isRecovery {
		eventType = entity.EventReconnecting
	}
	e.emit(rt, eventType, nil)

	e.log.Info("session started",
		logger.String("session_id", sessionID),
		logger.String("user_id", userID),
		logger.Bool("recovery", isRecovery))

	return e.snapshot(rt), nil
}

// GetStatus returns the session's status snapshot including the QR
// challenge while pairing.
func (e *Engine) GetStatus(sessionID string) (entity.Snapshot, error) {
	e.mu.RLock()
	rt, exists := e.sessions[sessionID]
	e.mu.RUnlock()
	if !exists {
		return entity.Snapshot{}, errors.ErrSessionNotFound
	}
	return e.snapshot(rt), nil
}

// QR returns the current pairing challenge for the session.
func (e *Engine) QR(sessionID string) (*entity.QRChallenge, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, exists := e.sessions[sessionID]; !exists {
		return nil, errors.ErrSessionNotFound
	}
	qr, ok := e.qrs[sessionID]
	if !ok {
		return nil, errors.ErrQRNotAvailable
	}
	if qr.Expired() {
		return nil, errors.ErrQRExpired
	}
	copied := *qr
	return &copied, nil
}

// Restart closes the socket, preserves auth and recreates the protocol
// instance.
func (e *Engine) Restart(ctx context.Context, sessionID string) error {
	return e.command(ctx, sessionID, command{kind: cmdRestart})
}

// Disconnect closes the socket, preserves auth and marks the session as
// manually disconnected.
func (e *Engine) Disconnect(ctx context.Context, sessionID string) error {
	return e.command(ctx, sessionID, command{kind: cmdDisconnect})
}

// Logout invalidates the device on the WhatsApp servers and cleans up all
// auth material.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	return e.command(ctx, sessionID, command{kind: cmdLogout})
}

// Delete is terminal: protocol logout, auth purge, in-memory removal.
func (e *Engine) Delete(ctx context.Context, sessionID string) error {
	e.mu.RLock()
	rt, exists := e.sessions[sessionID]
	e.mu.RUnlock()
	if !exists {
		return errors.ErrSessionNotFound
	}

	if err := rt.post(ctx, command{kind: cmdDelete}); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.sessions, sessionID)
	delete(e.qrs, sessionID)
	e.mu.Unlock()

	rt.stop()
	e.emitEvent(entity.SessionStatusEvent{
		Type:      entity.EventSessionDeleted,
		SessionID: sessionID,
		Status:    entity.BackendDisconnected,
		Timestamp: time.Now(),
	})
	return nil
}

// Send dispatches one outbound message through the session's task. It
// fails unless the session is connected and authenticated.
func (e *Engine) Send(ctx context.Context, msg *entity.OutboundMessage, opts entity.SendOptions) (*entity.SendResult, error) {
	e.mu.RLock()
	rt, exists := e.sessions[msg.SessionID]
	e.mu.RUnlock()
	if !exists {
		return nil, errors.ErrSessionNotFound
	}

	cmd := command{kind: cmdSend, msg: msg, opts: opts, reply: make(chan sendReply, 1)}
	if err := rt.enqueue(ctx, cmd); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, errors.ErrTransient.WithCause(ctx.Err())
	case reply := <-cmd.reply:
		return reply.result, reply.err
	}
}

// SendBulk dispatches up to BulkMaxMessages messages with the configured
// inter-message delay. Messages past BulkMaxMessages are dropped without
// an entry; every dispatched index lands in exactly one of results or
// errors.
func (e *Engine) SendBulk(ctx context.Context, sessionID string, msgs []*entity.OutboundMessage, opts entity.SendOptions) ([]entity.BulkSendItem, []entity.BulkSendItem) {
	if len(msgs) > e.cfg.BulkMaxMessages {
		msgs = msgs[:e.cfg.BulkMaxMessages]
	}

	var results, failures []entity.BulkSendItem
	for i, msg := range msgs {
		if i > 0 {
			if err := sleepCtx(ctx, e.cfg.BulkMessageDelay); err != nil {
				failures = append(failures, entity.BulkSendItem{Index: i, Error: err.Error()})
				continue
			}
		}

		msg.SessionID = sessionID
		res, err := e.Send(ctx, msg, opts)
		if err != nil {
			failures = append(failures, entity.BulkSendItem{Index: i, Error: err.Error()})
			continue
		}
		results = append(results, entity.BulkSendItem{Index: i, Result: res})
	}
	return results, failures
}

// List returns snapshots for every session, ordered by id for stable
// output.
func (e *Engine) List() []entity.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]entity.Snapshot, 0, len(e.sessions))
	for id, rt := range e.sessions {
		snap := rt.sess.Snapshot()
		if qr, ok := e.qrs[id]; ok && !qr.Expired() {
			copied := *qr
			snap.QR = &copied
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Statistics returns counts per status bucket.
func (e *Engine) Statistics() entity.Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var st entity.Statistics
	for _, rt := range e.sessions {
		st.Add(rt.sess.Status)
	}
	return st
}

// Shutdown ends every session task without purging auth, used on process
// exit after preservation has run.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.RLock()
	runtimes := make([]*runtime, 0, len(e.sessions))
	for _, rt := range e.sessions {
		runtimes = append(runtimes, rt)
	}
	e.mu.RUnlock()

	for _, rt := range runtimes {
		_ = rt.post(ctx, command{kind: cmdPark})
		rt.stop()
	}
	e.log.Info("engine shut down", logger.Int("sessions", len(runtimes)))
}

// command routes a no-payload command to a session task and waits for it.
func (e *Engine) command(ctx context.Context, sessionID string, cmd command) error {
	e.mu.RLock()
	rt, exists := e.sessions[sessionID]
	e.mu.RUnlock()
	if !exists {
		return errors.ErrSessionNotFound
	}
	return rt.post(ctx, cmd)
}

// snapshot copies a runtime's session under the read lock and attaches
// its QR challenge.
func (e *Engine) snapshot(rt *runtime) entity.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := rt.sess.Snapshot()
	if qr, ok := e.qrs[rt.sess.ID]; ok && !qr.Expired() {
		copied := *qr
		snap.QR = &copied
	}
	return snap
}

// emit builds and publishes a session-status event from current state.
func (e *Engine) emit(rt *runtime, eventType entity.EventType, mutate func(*entity.SessionStatusEvent)) {
	e.mu.RLock()
	evt := entity.SessionStatusEvent{
		Type:        eventType,
		SessionID:   rt.sess.ID,
		Status:      rt.sess.Status.ToBackendStatus(),
		Timestamp:   time.Now(),
		PhoneNumber: rt.sess.PhoneNumber,
		DisplayName: rt.sess.DisplayName,
	}
	e.mu.RUnlock()

	if mutate != nil {
		mutate(&evt)
	}
	e.emitEvent(evt)
}

// emitEvent publishes fire-and-forget; delivery failures stay inside the
// notifier.
func (e *Engine) emitEvent(evt entity.SessionStatusEvent) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifySessionStatus(evt)
}

// notifyMessageStatus forwards a delivery update as a message-status
// webhook.
func (e *Engine) notifyMessageStatus(sessionID string, evt *repository.ProtocolEvent) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifyMessageStatus(entity.MessageStatusEvent{
		SessionID: sessionID,
		MessageID: evt.MessageID,
		To:        evt.Chat,
		Status:    evt.DeliveryStatus,
		Timestamp: time.Now(),
	})
}
