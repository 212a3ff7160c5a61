package engine

import (
	"context"
	"testing"
	"time"

	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/errors"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/logger"
	"whatsam/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func testConfig() Config {
	return Config{
		MaxQRAttempts:        3,
		QRTimeout:            200 * time.Millisecond,
		QRTerminalTimeout:    100 * time.Millisecond,
		AutoDisconnectGrace:  60 * time.Millisecond,
		ReconnectInterval:    20 * time.Millisecond,
		RecoveredReconnect:   10 * time.Millisecond,
		TimedOutReconnect:    30 * time.Millisecond,
		MaxReconnectAttempts: 3,
		QueryTimeout:         time.Second,
		BulkMessageDelay:     10 * time.Millisecond,
		BulkMaxMessages:      100,
	}
}

func newTestEngine(t *testing.T) (*Engine, *mocks.FakeProtocolFactory, *mocks.FakeAuthStore, *mocks.RecordingNotifier) {
	t.Helper()
	factory := mocks.NewFakeProtocolFactory()
	store := mocks.NewFakeAuthStore()
	notifier := mocks.NewRecordingNotifier()
	eng := New(testConfig(), factory, store, notifier, nil, logger.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		eng.Shutdown(ctx)
	})
	return eng, factory, store, notifier
}

func requireStatus(t *testing.T, eng *Engine, sessionID string, want entity.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := eng.GetStatus(sessionID)
		return err == nil && snap.Status == want
	}, waitTimeout, 5*time.Millisecond, "session %s never reached %s", sessionID, want)
}

func noSim() entity.SendOptions {
	off := false
	return entity.SendOptions{HumanSimulation: &off}
}

func TestStartCreatesSession(t *testing.T) {
	eng, factory, store, notifier := newTestEngine(t)

	snap, err := eng.Start(context.Background(), "s01", "u1", "primary")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInitializing, snap.Status)
	assert.Equal(t, "u1", snap.UserID)

	require.NotNil(t, factory.Latest("s01"))
	assert.True(t, store.HasLocal("s01"))

	_, ok := notifier.WaitFor("s01", entity.EventSessionCreated, waitTimeout)
	assert.True(t, ok)
}

func TestStartRejectsInvalidSessionID(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "x", "u1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidSessionID)
}

func TestCreateConflict(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	_, err := eng.Create(context.Background(), "dup", "u1", "", false)
	require.NoError(t, err)

	_, err = eng.Create(context.Background(), "dup", "u1", "", false)
	assert.ErrorIs(t, err, errors.ErrSessionExists)
}

func TestCreateRollsBackOnFactoryError(t *testing.T) {
	eng, factory, _, _ := newTestEngine(t)
	factory.NewErrs["broken"] = errors.ErrInternal.WithMessage("no store")

	_, err := eng.Create(context.Background(), "broken", "u1", "", false)
	require.Error(t, err)

	_, err = eng.GetStatus("broken")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)

	// The id is free again.
	delete(factory.NewErrs, "broken")
	_, err = eng.Create(context.Background(), "broken", "u1", "", false)
	assert.NoError(t, err)
}

// Happy QR pairing: QR event, then open with identity.
func TestQRPairingToConnected(t *testing.T) {
	eng, factory, store, notifier := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s01", "u1", "")
	require.NoError(t, err)
	client := factory.Latest("s01")

	client.EmitQR("qrA")
	evt, ok := notifier.WaitFor("s01", entity.EventQRReady, waitTimeout)
	require.True(t, ok)
	assert.Equal(t, "qrA", evt.QRCode)
	assert.Equal(t, 1, evt.QRAttempt)
	assert.Equal(t, entity.BackendQRRequired, evt.Status)

	requireStatus(t, eng, "s01", entity.StatusQRReady)
	qr, err := eng.QR("s01")
	require.NoError(t, err)
	assert.Equal(t, "qrA", qr.Code)

	client.EmitOpen("6281234567:5@s.whatsapp.net", "Alice")
	evt, ok = notifier.WaitFor("s01", entity.EventConnected, waitTimeout)
	require.True(t, ok)
	assert.Equal(t, entity.BackendConnected, evt.Status)
	assert.Equal(t, "+6281234567", evt.PhoneNumber)
	assert.Equal(t, "Alice", evt.DisplayName)

	requireStatus(t, eng, "s01", entity.StatusConnected)

	// QR state is cleared and attempts reset on connect.
	snap, err := eng.GetStatus("s01")
	require.NoError(t, err)
	assert.Zero(t, snap.QRAttempts)
	_, err = eng.QR("s01")
	assert.ErrorIs(t, err, errors.ErrQRNotAvailable)

	// Auth is mirrored to the remote store off the session task.
	require.Eventually(t, func() bool {
		return store.SnapshotCount("s01") >= 1
	}, waitTimeout, 5*time.Millisecond)
}

// Max QR attempts: terminal attempt arms the grace timer, then the
// session auto-disconnects and auth is purged.
func TestQRMaxAttemptsAutoDisconnect(t *testing.T) {
	eng, factory, store, notifier := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s02", "u2", "")
	require.NoError(t, err)
	client := factory.Latest("s02")

	client.EmitQR("qr1")
	client.EmitQR("qr2")
	client.EmitQR("qr3")

	evt, ok := notifier.WaitFor("s02", entity.EventSessionAutoDisconnected, waitTimeout)
	require.True(t, ok)
	assert.Equal(t, "qr3", evt.QRCode)
	assert.Equal(t, 3, evt.QRAttempt)
	assert.NotZero(t, evt.AutoDisconnectIn)

	// Further QR events past the cap are ignored.
	client.EmitQR("qr4")

	_, ok = notifier.WaitFor("s02", entity.EventDisconnected, waitTimeout)
	require.True(t, ok)
	requireStatus(t, eng, "s02", entity.StatusAutoDisconnected)

	assert.GreaterOrEqual(t, store.PurgeCount("s02"), 1)

	snap, _ := eng.GetStatus("s02")
	assert.LessOrEqual(t, snap.QRAttempts, 3)
}

// Remote unlink: a conflict close while connected logs the session out,
// with cached identity on the webhook and auth purged on both sides.
func TestRemoteUnlinkLogsOut(t *testing.T) {
	eng, factory, store, notifier := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s03", "u3", "")
	require.NoError(t, err)
	client := factory.Latest("s03")
	client.EmitOpen("6285179971457:52@s.whatsapp.net", "Bob")
	requireStatus(t, eng, "s03", entity.StatusConnected)

	client.EmitClose(0, "Stream Errored (conflict)")

	evt, ok := notifier.WaitFor("s03", entity.EventSessionLoggedOut, waitTimeout)
	require.True(t, ok)
	assert.Equal(t, "+6285179971457", evt.PhoneNumber)
	assert.Equal(t, "Bob", evt.DisplayName)

	requireStatus(t, eng, "s03", entity.StatusLoggedOut)
	assert.GreaterOrEqual(t, store.PurgeCount("s03"), 1)
}

// Manual disconnect preserves auth and webhooks exactly once; Start
// afterwards restarts the session with a fresh protocol instance.
func TestManualDisconnectThenRestart(t *testing.T) {
	eng, factory, store, notifier := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s04", "u4", "")
	require.NoError(t, err)
	client := factory.Latest("s04")
	client.EmitOpen("491700000001@s.whatsapp.net", "Carol")
	requireStatus(t, eng, "s04", entity.StatusConnected)

	require.NoError(t, eng.Disconnect(context.Background(), "s04"))
	requireStatus(t, eng, "s04", entity.StatusDisconnected)

	evt, ok := notifier.WaitFor("s04", entity.EventDisconnected, waitTimeout)
	require.True(t, ok)
	assert.Equal(t, "manual", evt.Reason)
	assert.Equal(t, 1, notifier.CountType(entity.EventDisconnected))
	assert.Zero(t, store.PurgeCount("s04"))

	// A close event from the dead socket must not webhook again.
	client.EmitClose(repository.CloseCodeConnectionClosed, "connection closed")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, notifier.CountType(entity.EventDisconnected))

	snap, err := eng.Start(context.Background(), "s04", "u4", "")
	require.NoError(t, err)
	assert.True(t, snap.ManualDisconnect == false || snap.Status != entity.StatusDisconnected)

	_, ok = notifier.WaitFor("s04", entity.EventReconnecting, waitTimeout)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return factory.Count("s04") >= 2
	}, waitTimeout, 5*time.Millisecond)
}

func TestConnectionReplacedDoesNotReconnect(t *testing.T) {
	eng, factory, _, notifier := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s05", "u5", "")
	require.NoError(t, err)
	client := factory.Latest("s05")
	client.EmitOpen("111@s.whatsapp.net", "")
	requireStatus(t, eng, "s05", entity.StatusConnected)

	client.EmitClose(repository.CloseCodeConnectionReplaced, "connection replaced")

	evt, ok := notifier.WaitFor("s05", entity.EventDisconnected, waitTimeout)
	require.True(t, ok)
	assert.Equal(t, "connection_replaced", evt.Reason)
	requireStatus(t, eng, "s05", entity.StatusDisconnected)

	// No second protocol instance: replacement devices are not fought.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, factory.Count("s05"))
}

func TestBadSessionPurgesAndRequiresAuth(t *testing.T) {
	eng, factory, store, notifier := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s06", "u6", "")
	require.NoError(t, err)
	client := factory.Latest("s06")
	client.EmitOpen("222@s.whatsapp.net", "")
	requireStatus(t, eng, "s06", entity.StatusConnected)

	client.EmitClose(repository.CloseCodeBadSession, "bad session")

	evt, ok := notifier.WaitFor("s06", entity.EventDisconnected, waitTimeout)
	require.True(t, ok)
	assert.True(t, evt.RequiresAuth)
	assert.GreaterOrEqual(t, store.PurgeCount("s06"), 1)
}

func TestGenericCloseSchedulesReconnect(t *testing.T) {
	eng, factory, _, notifier := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s07", "u7", "")
	require.NoError(t, err)
	client := factory.Latest("s07")
	client.EmitOpen("333@s.whatsapp.net", "")
	requireStatus(t, eng, "s07", entity.StatusConnected)

	client.EmitClose(repository.CloseCodeConnectionClosed, "connection closed")

	_, ok := notifier.WaitFor("s07", entity.EventReconnecting, waitTimeout)
	require.True(t, ok)

	// The reconnect one-shot fires and builds a new protocol instance.
	require.Eventually(t, func() bool {
		return factory.Count("s07") >= 2
	}, waitTimeout, 5*time.Millisecond)

	// The fresh instance can pair again.
	factory.Latest("s07").EmitOpen("333@s.whatsapp.net", "")
	requireStatus(t, eng, "s07", entity.StatusConnected)
}

func TestRestartRequiredReconnectsImmediately(t *testing.T) {
	eng, factory, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s08", "u8", "")
	require.NoError(t, err)
	client := factory.Latest("s08")
	client.EmitOpen("444@s.whatsapp.net", "")
	requireStatus(t, eng, "s08", entity.StatusConnected)

	client.EmitClose(repository.CloseCodeRestartRequired, "restart required")

	require.Eventually(t, func() bool {
		return factory.Count("s08") >= 2
	}, waitTimeout, 5*time.Millisecond)
}

func TestDeleteRemovesSession(t *testing.T) {
	eng, factory, store, notifier := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s09", "u9", "")
	require.NoError(t, err)
	client := factory.Latest("s09")
	client.EmitOpen("555@s.whatsapp.net", "")
	requireStatus(t, eng, "s09", entity.StatusConnected)

	require.NoError(t, eng.Delete(context.Background(), "s09"))

	_, err = eng.GetStatus("s09")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
	assert.GreaterOrEqual(t, store.PurgeCount("s09"), 1)
	assert.True(t, client.LogoutCalled)

	_, ok := notifier.WaitFor("s09", entity.EventSessionDeleted, waitTimeout)
	assert.True(t, ok)
}

func TestSendRequiresConnected(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s10", "u10", "")
	require.NoError(t, err)

	msg := &entity.OutboundMessage{
		SessionID: "s10",
		To:        "+491700000000",
		Type:      entity.MessageTypeText,
		Text:      "hi",
	}
	_, err = eng.Send(context.Background(), msg, noSim())
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestSendDispatchesWhenConnected(t *testing.T) {
	eng, factory, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s11", "u11", "")
	require.NoError(t, err)
	client := factory.Latest("s11")
	client.EmitOpen("666@s.whatsapp.net", "")
	requireStatus(t, eng, "s11", entity.StatusConnected)

	msg := &entity.OutboundMessage{
		SessionID: "s11",
		To:        "+491700000000",
		Type:      entity.MessageTypeText,
		Text:      "hello",
	}
	result, err := eng.Send(context.Background(), msg, noSim())
	require.NoError(t, err)
	assert.Equal(t, "MSG-1", result.MessageID)
	assert.Equal(t, "sent", result.Status)
	assert.Equal(t, 1, client.SentCount())
}

func TestSendWithPacerChoreography(t *testing.T) {
	eng, factory, _, _ := newTestEngine(t)

	// Stub the pacer's sleeps; the presence sequence still runs.
	var slept []time.Duration
	eng.pacer.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := eng.Start(context.Background(), "s12", "u12", "")
	require.NoError(t, err)
	client := factory.Latest("s12")
	client.EmitOpen("777@s.whatsapp.net", "")
	requireStatus(t, eng, "s12", entity.StatusConnected)

	msg := &entity.OutboundMessage{
		SessionID: "s12",
		To:        "+491700000000",
		Type:      entity.MessageTypeText,
		Text:      "paced",
	}
	_, err = eng.Send(context.Background(), msg, entity.SendOptions{})
	require.NoError(t, err)

	require.Len(t, slept, 3)
	trail := client.PresenceTrail()
	require.Len(t, trail, 4)
	assert.Equal(t, repository.PresenceAvailable, trail[0])
	assert.Equal(t, repository.PresenceComposing, trail[1])
	assert.Equal(t, repository.PresencePaused, trail[2])
	assert.Equal(t, repository.PresenceAvailable, trail[3])
}

func TestSendBulkPartitionsResultsAndErrors(t *testing.T) {
	eng, factory, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s13", "u13", "")
	require.NoError(t, err)
	client := factory.Latest("s13")
	client.EmitOpen("888@s.whatsapp.net", "")
	client.FailTo = map[string]error{"+000": mocks.ErrFakeSend}
	requireStatus(t, eng, "s13", entity.StatusConnected)

	msgs := []*entity.OutboundMessage{
		{To: "+491700000000", Type: entity.MessageTypeText, Text: "ok"},
		{To: "+000", Type: entity.MessageTypeText, Text: "bad"},
		{To: "+491700000001", Type: entity.MessageTypeText, Text: "ok2"},
	}

	start := time.Now()
	results, failures := eng.SendBulk(context.Background(), "s13", msgs, noSim())

	assert.Len(t, results, 2)
	assert.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].Index)

	// Inter-message delay observed between dispatches.
	assert.GreaterOrEqual(t, time.Since(start), 2*testConfig().BulkMessageDelay)

	// Every index lands in exactly one partition.
	seen := map[int]int{}
	for _, r := range results {
		seen[r.Index]++
	}
	for _, f := range failures {
		seen[f.Index]++
	}
	for i := 0; i < len(msgs); i++ {
		assert.Equal(t, 1, seen[i], "index %d", i)
	}
}

func TestPresenceOnlySendTypes(t *testing.T) {
	eng, factory, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s14", "u14", "")
	require.NoError(t, err)
	client := factory.Latest("s14")
	client.EmitOpen("999@s.whatsapp.net", "")
	requireStatus(t, eng, "s14", entity.StatusConnected)

	_, err = eng.Send(context.Background(), &entity.OutboundMessage{
		SessionID:  "s14",
		To:         "+4917000",
		Type:       entity.MessageTypeSeen,
		MessageIDs: []string{"A", "B"},
	}, noSim())
	require.NoError(t, err)
	require.Len(t, client.MarkReads, 1)
	assert.Equal(t, []string{"A", "B"}, client.MarkReads[0])

	_, err = eng.Send(context.Background(), &entity.OutboundMessage{
		SessionID: "s14",
		To:        "+4917000",
		Type:      entity.MessageTypeTypingStart,
	}, noSim())
	require.NoError(t, err)
	assert.Contains(t, client.PresenceTrail(), repository.PresenceComposing)

	// Presence operations produce no wire message.
	assert.Zero(t, client.SentCount())
}

func TestStatisticsBuckets(t *testing.T) {
	eng, factory, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "a11", "u", "")
	require.NoError(t, err)
	_, err = eng.Start(context.Background(), "b22", "u", "")
	require.NoError(t, err)

	factory.Latest("a11").EmitOpen("123@s.whatsapp.net", "")
	requireStatus(t, eng, "a11", entity.StatusConnected)

	stats := eng.Statistics()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Connected)
	assert.Equal(t, 1, stats.Initializing)

	list := eng.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a11", list[0].ID)
	assert.Equal(t, "b22", list[1].ID)
}

func TestStartIsIdempotentWhileLive(t *testing.T) {
	eng, factory, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "s15", "u15", "")
	require.NoError(t, err)
	factory.Latest("s15").EmitOpen("314@s.whatsapp.net", "")
	requireStatus(t, eng, "s15", entity.StatusConnected)

	snap, err := eng.Start(context.Background(), "s15", "u15", "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConnected, snap.Status)
	assert.Equal(t, 1, factory.Count("s15"))
}
