package engine

import (
	"context"
	"time"

	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/errors"
	"whatsam/internal/domain/repository"
	"whatsam/internal/domain/valueobject"
	"whatsam/internal/infrastructure/logger"
)

type cmdKind int

const (
	cmdRestart cmdKind = iota
	cmdDisconnect
	cmdLogout
	cmdDelete
	cmdSend
	cmdPark // end the socket without touching auth (shutdown)
)

type sendReply struct {
	result *entity.SendResult
	err    error
}

type command struct {
	kind  cmdKind
	ctx   context.Context
	msg   *entity.OutboundMessage
	opts  entity.SendOptions
	reply chan sendReply // cmdSend only
	done  chan error     // all other kinds
}

type timerKind int

const (
	timerNone timerKind = iota
	timerReconnect
	timerAutoDisconnect
)

// inboxItem is one unit of work for the session task: a protocol event,
// an operator command, or a timer firing. The task consumes items
// serially, which is what makes the per-session ordering guarantee hold.
type inboxItem struct {
	evt   *repository.ProtocolEvent
	src   repository.ProtocolClient // client that produced evt
	cmd   *command
	timer timerKind
}

// runtime owns one session: its entity, its protocol client and its
// timers. Only the run loop mutates any of them.
type runtime struct {
	e    *Engine
	sess *entity.Session
	log  logger.Logger

	authDir string
	proto   repository.ProtocolClient
	inbox   chan inboxItem

	ctx    context.Context
	cancel context.CancelFunc

	reconnectTimer    *time.Timer
	qrTimer           *time.Timer
	reconnectAttempts int
}

func newRuntime(e *Engine, sess *entity.Session) *runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &runtime{
		e:      e,
		sess:   sess,
		log:    e.log.WithSessionID(sess.ID),
		inbox:  make(chan inboxItem, 64),
		ctx:    ctx,
		cancel: cancel,
	}
}

// boot prepares auth storage, creates the first protocol instance and
// starts the task. A failure leaves no task behind; the engine rolls the
// map entry back.
func (rt *runtime) boot(ctx context.Context) error {
	dir, err := rt.e.store.EnsureLocal(rt.sess.ID)
	if err != nil {
		return err
	}
	rt.authDir = dir

	client, err := rt.e.factory.New(ctx, rt.sess.ID, dir)
	if err != nil {
		return errors.ErrInternal.WithCause(err).WithMessage("failed to create protocol client")
	}
	rt.proto = client

	go rt.run()
	go rt.pump(client)

	if err := client.Connect(ctx); err != nil {
		return err
	}
	return nil
}

// stop cancels the task. Idempotent.
func (rt *runtime) stop() {
	rt.cancel()
}

// post sends a command and waits for its completion.
func (rt *runtime) post(ctx context.Context, cmd command) error {
	cmd.ctx = ctx
	cmd.done = make(chan error, 1)
	if err := rt.enqueue(ctx, cmd); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return errors.ErrTransient.WithCause(ctx.Err())
	case <-rt.ctx.Done():
		return errors.ErrSessionNotFound.WithMessage("session task stopped")
	case err := <-cmd.done:
		return err
	}
}

// enqueue places a command on the task's inbox.
func (rt *runtime) enqueue(ctx context.Context, cmd command) error {
	if cmd.ctx == nil {
		cmd.ctx = ctx
	}
	select {
	case rt.inbox <- inboxItem{cmd: &cmd}:
		return nil
	case <-ctx.Done():
		return errors.ErrTransient.WithCause(ctx.Err())
	case <-rt.ctx.Done():
		return errors.ErrSessionNotFound.WithMessage("session task stopped")
	}
}

// pump forwards protocol events from one client instance into the inbox.
// Items carry their source so events from a replaced client are dropped.
func (rt *runtime) pump(client repository.ProtocolClient) {
	for {
		select {
		case <-rt.ctx.Done():
			return
		case evt, ok := <-client.Events():
			if !ok {
				return
			}
			select {
			case rt.inbox <- inboxItem{evt: &evt, src: client}:
			case <-rt.ctx.Done():
				return
			}
		}
	}
}

// run is the session task: every protocol event, command and timer for
// this session funnels through here, serially.
func (rt *runtime) run() {
	for {
		select {
		case <-rt.ctx.Done():
			return
		case item := <-rt.inbox:
			rt.handle(item)
		}
	}
}

func (rt *runtime) handle(item inboxItem) {
	switch {
	case item.evt != nil:
		// Events from a client that has since been replaced are stale.
		if item.src != rt.proto {
			return
		}
		rt.handleEvent(item.evt)
	case item.cmd != nil:
		rt.handleCommand(item.cmd)
	case item.timer != timerNone:
		rt.handleTimer(item.timer)
	}
}

func (rt *runtime) handleEvent(evt *repository.ProtocolEvent) {
	switch evt.Kind {
	case repository.ProtocolEventQR:
		rt.handleQR(evt.QR)
	case repository.ProtocolEventOpen:
		rt.handleOpen(evt.JID, evt.PushName)
	case repository.ProtocolEventClose:
		rt.handleClose(evt.StatusCode, evt.Message)
	case repository.ProtocolEventMessageStatus:
		rt.e.notifyMessageStatus(rt.sess.ID, evt)
	case repository.ProtocolEventCredsUpdate, repository.ProtocolEventConnecting:
		// Credential writes land on disk through the protocol store;
		// mirroring happens on the connected transition.
	}
}

// handleQR runs the pairing attempt policy: count the attempt, store the
// challenge, and on the terminal attempt arm the auto-disconnect grace
// timer.
func (rt *runtime) handleQR(code string) {
	max := rt.e.cfg.MaxQRAttempts

	if rt.sess.QRAttempts >= max {
		// Library kept emitting after the cap; the grace timer owns the
		// session now.
		return
	}

	attempt := rt.sess.QRAttempts + 1
	ttl := rt.e.cfg.QRTimeout
	if attempt == max {
		ttl = rt.e.cfg.QRTerminalTimeout
	}
	qr := entity.NewQRChallenge(rt.sess.ID, code, attempt, max, ttl)

	rt.e.mu.Lock()
	rt.sess.QRAttempts = attempt
	rt.e.qrs[rt.sess.ID] = qr
	rt.e.mu.Unlock()

	rt.setStatus(entity.StatusQRReady)

	if attempt == max {
		rt.armQRTimer(rt.e.cfg.AutoDisconnectGrace)
		// Whole seconds, rounded up so a pending disconnect never reads as 0.
		grace := int((rt.e.cfg.AutoDisconnectGrace + time.Second - 1) / time.Second)
		rt.e.emit(rt, entity.EventSessionAutoDisconnected, func(e *entity.SessionStatusEvent) {
			e.QRCode = code
			e.QRAttempt = attempt
			e.AutoDisconnectIn = grace
		})
		rt.log.Warn("max QR attempts reached, auto-disconnect armed",
			logger.Int("attempts", attempt))
		return
	}

	rt.e.emit(rt, entity.EventQRReady, func(e *entity.SessionStatusEvent) {
		e.QRCode = code
		e.QRAttempt = attempt
	})
	rt.log.Info("QR challenge issued", logger.Int("attempt", attempt))
}

// handleOpen is the connected transition: clear pairing state, cache the
// identity and mirror auth to the remote store.
func (rt *runtime) handleOpen(jid, pushName string) {
	rt.cancelTimers()
	rt.reconnectAttempts = 0

	rt.e.mu.Lock()
	delete(rt.e.qrs, rt.sess.ID)
	rt.sess.QRAttempts = 0
	rt.sess.ManualDisconnect = false
	rt.sess.LastDisconnectReason = ""
	rt.sess.PhoneNumber = valueobject.NormalizePhoneNumber(jid)
	if pushName != "" {
		rt.sess.DisplayName = pushName
	}
	rt.e.mu.Unlock()

	rt.setStatus(entity.StatusConnected)

	// The remote mirror must never block the connected transition.
	go rt.snapshotAuth()

	rt.e.emit(rt, entity.EventConnected, nil)
	rt.log.Info("session connected",
		logger.String("phone", rt.sess.PhoneNumber),
		logger.String("display_name", rt.sess.DisplayName))
}

// handleClose applies the close-reason policy.
func (rt *runtime) handleClose(statusCode int, message string) {
	if rt.sess.ManualDisconnect {
		// Operator already got the disconnected webhook; nothing to do.
		return
	}

	reason := ClassifyClose(statusCode, message)
	rt.e.mu.Lock()
	rt.sess.LastDisconnectReason = reason.String()
	rt.e.mu.Unlock()

	rt.log.Info("protocol close",
		logger.Int("status_code", statusCode),
		logger.String("reason", reason.String()),
		logger.String("message", message))

	switch reason {
	case CloseLoggedOut:
		rt.teardownProto()
		rt.clearQR()
		rt.purgeAuth()
		rt.setStatus(entity.StatusLoggedOut)
		rt.e.emit(rt, entity.EventSessionLoggedOut, func(e *entity.SessionStatusEvent) {
			e.Reason = reason.String()
		})

	case CloseReplaced:
		// Another device holds the slot now; reconnecting would fight it.
		rt.teardownProto()
		rt.clearQR()
		rt.setStatus(entity.StatusDisconnected)
		rt.e.emit(rt, entity.EventDisconnected, func(e *entity.SessionStatusEvent) {
			e.Reason = reason.String()
		})

	case CloseBadSession:
		rt.teardownProto()
		rt.clearQR()
		rt.purgeAuth()
		rt.setStatus(entity.StatusDisconnected)
		rt.e.emit(rt, entity.EventDisconnected, func(e *entity.SessionStatusEvent) {
			e.Reason = reason.String()
			e.RequiresAuth = true
		})

	case CloseRestartRequired:
		rt.restart()

	case CloseTimedOut:
		delay := rt.e.cfg.TimedOutReconnect
		if rt.sess.IsRecovered {
			delay = rt.e.cfg.RecoveredReconnect
		}
		rt.scheduleReconnect(delay, reason)

	default:
		delay := rt.e.cfg.ReconnectInterval
		if rt.sess.IsRecovered {
			// Recovered sessions are known to need faster reattach.
			delay = rt.e.cfg.RecoveredReconnect
		}
		rt.scheduleReconnect(delay, reason)
	}
}

func (rt *runtime) handleCommand(cmd *command) {
	switch cmd.kind {
	case cmdSend:
		result, err := rt.doSend(cmd.ctx, cmd.msg, cmd.opts)
		cmd.reply <- sendReply{result: result, err: err}
		return

	case cmdRestart:
		rt.clearQR()
		rt.e.mu.Lock()
		rt.sess.ManualDisconnect = false
		rt.e.mu.Unlock()
		rt.restart()

	case cmdDisconnect:
		rt.cancelTimers()
		rt.clearQR()
		rt.teardownProto()
		rt.e.mu.Lock()
		rt.sess.ManualDisconnect = true
		rt.e.mu.Unlock()
		rt.setStatus(entity.StatusDisconnected)
		rt.e.emit(rt, entity.EventDisconnected, func(e *entity.SessionStatusEvent) {
			e.Reason = "manual"
		})

	case cmdLogout:
		rt.cancelTimers()
		rt.clearQR()
		rt.protocolLogout(cmd.ctx)
		rt.teardownProto()
		rt.purgeAuth()
		rt.setStatus(entity.StatusLoggedOut)
		rt.e.emit(rt, entity.EventDisconnected, func(e *entity.SessionStatusEvent) {
			e.Reason = "logged_out"
		})

	case cmdDelete:
		rt.cancelTimers()
		rt.clearQR()
		rt.protocolLogout(cmd.ctx)
		rt.teardownProto()
		rt.purgeAuth()
		rt.setStatus(entity.StatusLoggedOut)

	case cmdPark:
		rt.cancelTimers()
		rt.teardownProto()
	}

	cmd.done <- nil
}

func (rt *runtime) handleTimer(kind timerKind) {
	switch kind {
	case timerReconnect:
		if rt.sess.Status != entity.StatusReconnecting {
			return
		}
		rt.reconnectNow()

	case timerAutoDisconnect:
		if rt.sess.Status != entity.StatusQRReady {
			return
		}
		rt.teardownProto()
		rt.clearQR()
		rt.purgeAuth()
		rt.setStatus(entity.StatusAutoDisconnected)
		rt.e.emit(rt, entity.EventDisconnected, func(e *entity.SessionStatusEvent) {
			e.Reason = "max_qr_attempts"
		})
		rt.log.Warn("session auto-disconnected after QR grace period")
	}
}

// restart tears the socket down and brings a fresh protocol instance up
// immediately, announcing the reconnect to the backend.
func (rt *runtime) restart() {
	rt.cancelTimers()
	rt.teardownProto()
	rt.setStatus(entity.StatusReconnecting)
	rt.e.emit(rt, entity.EventReconnecting, nil)
	rt.reconnectNow()
}

// scheduleReconnect parks the session in RECONNECTING and arms the
// one-shot. A newer transition cancels the pending timer.
func (rt *runtime) scheduleReconnect(delay time.Duration, reason CloseReason) {
	rt.teardownProto()
	rt.setStatus(entity.StatusReconnecting)
	rt.armReconnectTimer(delay)
	if rt.e.observer != nil {
		rt.e.observer.ReconnectScheduled(rt.sess.ID)
	}
	rt.e.emit(rt, entity.EventReconnecting, func(e *entity.SessionStatusEvent) {
		e.Reason = reason.String()
	})
	rt.log.Info("reconnect scheduled",
		logger.String("reason", reason.String()),
		logger.Duration("delay_ms", float64(delay.Milliseconds())))
}

// reconnectNow builds a new protocol instance over the preserved auth
// directory and connects it.
func (rt *runtime) reconnectNow() {
	rt.reconnectAttempts++

	rt.setStatus(entity.StatusInitializing)

	ctx, cancel := context.WithTimeout(rt.ctx, rt.e.cfg.QueryTimeout)
	defer cancel()

	client, err := rt.e.factory.New(ctx, rt.sess.ID, rt.authDir)
	if err != nil {
		rt.fail(err)
		return
	}
	rt.proto = client
	go rt.pump(client)

	if err := client.Connect(ctx); err != nil {
		if rt.reconnectAttempts >= maxReconnectAttempts(rt.e.cfg) {
			rt.fail(err)
			return
		}
		rt.scheduleReconnect(rt.e.cfg.ReconnectInterval, CloseRetryable)
	}
}

func maxReconnectAttempts(cfg Config) int {
	// Zero means the deployment did not bound reattach; fall back to a
	// sane cap so a dead network cannot spin forever.
	if n := cfg.MaxReconnectAttempts; n > 0 {
		return n
	}
	return 5
}

// fail parks the session in FAILED after an unrecoverable create/restart
// error.
func (rt *runtime) fail(err error) {
	rt.cancelTimers()
	rt.teardownProto()
	rt.clearQR()
	rt.setStatus(entity.StatusFailed)
	rt.e.emit(rt, entity.EventSessionFailed, func(e *entity.SessionStatusEvent) {
		e.Reason = err.Error()
	})
	rt.log.Error("session failed", logger.Err(err))
}

// doSend is the guarded send path: connected and authenticated only,
// paced when human simulation is on.
func (rt *runtime) doSend(ctx context.Context, msg *entity.OutboundMessage, opts entity.SendOptions) (*entity.SendResult, error) {
	if rt.sess.Status != entity.StatusConnected || rt.proto == nil {
		return nil, errors.ErrNotConnected
	}
	if !rt.proto.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}
	if !msg.Type.IsValid() {
		return nil, errors.ErrInvalidMessageType
	}
	if ctx == nil {
		ctx = rt.ctx
	}

	// Presence-style operations skip the pacer and produce no wire message.
	if msg.Type.IsPresenceOnly() {
		return rt.doPresenceOp(ctx, msg)
	}

	start := time.Now()
	if opts.Simulate() {
		if err := rt.e.pacer.Pace(ctx, rt.proto, msg.To); err != nil {
			return nil, errors.ErrTransient.WithCause(err)
		}
	}

	id, err := rt.proto.SendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	if opts.Simulate() {
		rt.e.pacer.Settle(ctx, rt.proto)
	}
	if rt.e.observer != nil {
		rt.e.observer.MessageSent(rt.sess.ID, time.Since(start))
	}

	result := &entity.SendResult{
		MessageID: id,
		Status:    "sent",
		To:        msg.To,
		Timestamp: time.Now(),
	}

	// Mirror outbound attachments to the media bucket; failures only cost
	// the presigned URL in the response.
	if len(msg.Media) > 0 {
		result.MediaURL = rt.mirrorMedia(msg)
	}

	return result, nil
}

func (rt *runtime) doPresenceOp(ctx context.Context, msg *entity.OutboundMessage) (*entity.SendResult, error) {
	var err error
	status := ""
	switch msg.Type {
	case entity.MessageTypeSeen:
		err = rt.proto.MarkRead(ctx, msg.To, msg.MessageIDs)
		status = "read"
	case entity.MessageTypeTypingStart:
		err = rt.proto.SendPresence(ctx, repository.PresenceComposing, msg.To)
		status = "typing"
	case entity.MessageTypeTypingStop:
		err = rt.proto.SendPresence(ctx, repository.PresencePaused, msg.To)
		status = "paused"
	}
	if err != nil {
		return nil, err
	}
	return &entity.SendResult{Status: status, To: msg.To, Timestamp: time.Now()}, nil
}

func (rt *runtime) mirrorMedia(msg *entity.OutboundMessage) string {
	ctx, cancel := context.WithTimeout(rt.ctx, 10*time.Second)
	defer cancel()

	name := msg.FileName
	if name == "" {
		name = "attachment"
	}
	url, err := rt.e.store.UploadMedia(ctx, rt.sess.ID, name, msg.Media, msg.MimeType)
	if err != nil {
		rt.log.Warn("media mirror failed", logger.Err(err))
		return ""
	}
	return url
}

// snapshotAuth mirrors the auth directory to the remote store. Runs off
// the session task; failures are logged and swallowed.
func (rt *runtime) snapshotAuth() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.e.store.Snapshot(ctx, rt.sess.ID); err != nil {
		rt.log.Warn("auth snapshot failed", logger.Err(err))
	}
}

// purgeAuth drops local and remote auth material. Best-effort: a remote
// failure is logged, never fatal.
func (rt *runtime) purgeAuth() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.e.store.Purge(ctx, rt.sess.ID); err != nil {
		rt.log.Warn("auth purge incomplete", logger.Err(err))
	}
}

func (rt *runtime) protocolLogout(ctx context.Context) {
	if rt.proto == nil {
		return
	}
	if ctx == nil {
		ctx = rt.ctx
	}
	if err := rt.proto.Logout(ctx); err != nil {
		rt.log.Warn("protocol logout failed", logger.Err(err))
	}
}

func (rt *runtime) teardownProto() {
	if rt.proto != nil {
		rt.proto.End()
		rt.proto = nil
	}
}

func (rt *runtime) clearQR() {
	rt.e.mu.Lock()
	delete(rt.e.qrs, rt.sess.ID)
	rt.sess.QRAttempts = 0
	rt.e.mu.Unlock()
	rt.cancelQRTimer()
}

func (rt *runtime) setStatus(s entity.Status) {
	rt.e.mu.Lock()
	from := rt.sess.Status
	rt.sess.SetStatus(s)
	rt.e.mu.Unlock()

	if rt.e.observer != nil && from != s {
		rt.e.observer.SessionTransition(rt.sess.ID, from, s)
	}
}

func (rt *runtime) armReconnectTimer(d time.Duration) {
	rt.cancelReconnectTimer()
	rt.reconnectTimer = time.AfterFunc(d, func() {
		select {
		case rt.inbox <- inboxItem{timer: timerReconnect}:
		case <-rt.ctx.Done():
		}
	})
}

func (rt *runtime) armQRTimer(d time.Duration) {
	rt.cancelQRTimer()
	rt.qrTimer = time.AfterFunc(d, func() {
		select {
		case rt.inbox <- inboxItem{timer: timerAutoDisconnect}:
		case <-rt.ctx.Done():
		}
	})
}

func (rt *runtime) cancelTimers() {
	rt.cancelReconnectTimer()
	rt.cancelQRTimer()
}

func (rt *runtime) cancelReconnectTimer() {
	if rt.reconnectTimer != nil {
		rt.reconnectTimer.Stop()
		rt.reconnectTimer = nil
	}
}

func (rt *runtime) cancelQRTimer() {
	if rt.qrTimer != nil {
		rt.qrTimer.Stop()
		rt.qrTimer = nil
	}
}
