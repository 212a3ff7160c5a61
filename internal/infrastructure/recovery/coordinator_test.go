package recovery

import (
	"context"
	"testing"
	"time"

	"whatsam/internal/application/engine"
	"whatsam/internal/domain/entity"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"
	"whatsam/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSetup(t *testing.T, registry *mocks.FakeRegistry) (*Coordinator, *engine.Engine, *mocks.FakeProtocolFactory, *mocks.FakeAuthStore) {
	t.Helper()

	factory := mocks.NewFakeProtocolFactory()
	store := mocks.NewFakeAuthStore()
	notifier := mocks.NewRecordingNotifier()

	engCfg := engine.Config{
		MaxQRAttempts:        3,
		QRTimeout:            200 * time.Millisecond,
		QRTerminalTimeout:    100 * time.Millisecond,
		AutoDisconnectGrace:  100 * time.Millisecond,
		ReconnectInterval:    20 * time.Millisecond,
		RecoveredReconnect:   10 * time.Millisecond,
		TimedOutReconnect:    20 * time.Millisecond,
		MaxReconnectAttempts: 3,
		QueryTimeout:         time.Second,
		BulkMessageDelay:     time.Millisecond,
		BulkMaxMessages:      100,
	}
	eng := engine.New(engCfg, factory, store, notifier, nil, logger.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		eng.Shutdown(ctx)
	})

	cfg := &config.Config{}
	cfg.Worker.ID = "w1"
	cfg.Recovery.Enabled = true

	return New(eng, store, registry, cfg, logger.Nop()), eng, factory, store
}

func TestRunRecoversAssignedSessions(t *testing.T) {
	registry := &mocks.FakeRegistry{
		Assignments: []entity.Assignment{
			{SessionID: "s05", UserID: "u5", Status: entity.BackendConnected},
			{SessionID: "s06", UserID: "u6", Status: entity.BackendQRRequired},
			{SessionID: "s07", UserID: "u7", Status: entity.BackendLoggedOut},
		},
	}
	coordinator, eng, factory, store := testSetup(t, registry)

	coordinator.Run(context.Background())

	// s05 and s06 are live with restored auth; s07's prior status is not
	// recoverable.
	snap, err := eng.GetStatus("s05")
	require.NoError(t, err)
	assert.True(t, snap.IsRecovered)
	_, err = eng.GetStatus("s06")
	require.NoError(t, err)
	_, err = eng.GetStatus("s07")
	assert.Error(t, err)

	assert.Equal(t, 1, store.Restores["s05"])
	assert.Equal(t, 1, store.Restores["s06"])
	assert.Zero(t, store.Restores["s07"])

	report := registry.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Recovered)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)

	// s05 resumes without QR once the protocol reattaches.
	factory.Latest("s05").EmitOpen("6281000001:1@s.whatsapp.net", "Eve")
	require.Eventually(t, func() bool {
		snap, err := eng.GetStatus("s05")
		return err == nil && snap.Status == entity.StatusConnected
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunSkipsExistingSessions(t *testing.T) {
	registry := &mocks.FakeRegistry{
		Assignments: []entity.Assignment{
			{SessionID: "dup1", UserID: "u1", Status: entity.BackendConnected},
		},
	}
	coordinator, eng, _, _ := testSetup(t, registry)

	_, err := eng.Create(context.Background(), "dup1", "u1", "", false)
	require.NoError(t, err)

	coordinator.Run(context.Background())

	report := registry.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Recovered)
}

func TestRunRecordsCreateFailures(t *testing.T) {
	registry := &mocks.FakeRegistry{
		Assignments: []entity.Assignment{
			{SessionID: "bad1", UserID: "u1", Status: entity.BackendConnected},
		},
	}
	coordinator, _, factory, _ := testSetup(t, registry)
	factory.NewErrs["bad1"] = assert.AnError

	coordinator.Run(context.Background())

	report := registry.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Recovered)
}

func TestRunDisabledDoesNothing(t *testing.T) {
	registry := &mocks.FakeRegistry{Disabled: true}
	coordinator, _, _, _ := testSetup(t, registry)

	coordinator.Run(context.Background())
	assert.Nil(t, registry.LastReport())
}

func TestPreserveSnapshotsLiveSessions(t *testing.T) {
	registry := &mocks.FakeRegistry{}
	coordinator, eng, factory, store := testSetup(t, registry)

	_, err := eng.Create(context.Background(), "live1", "u1", "", false)
	require.NoError(t, err)
	factory.Latest("live1").EmitOpen("6281000002:1@s.whatsapp.net", "")
	require.Eventually(t, func() bool {
		snap, err := eng.GetStatus("live1")
		return err == nil && snap.Status == entity.StatusConnected
	}, 2*time.Second, 5*time.Millisecond)

	// A parked session is not preserved.
	_, err = eng.Create(context.Background(), "parked1", "u2", "", false)
	require.NoError(t, err)
	require.NoError(t, eng.Disconnect(context.Background(), "parked1"))

	before := store.SnapshotCount("live1")
	coordinator.Preserve(context.Background())

	assert.GreaterOrEqual(t, store.SnapshotCount("live1"), before+1)
	report := registry.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Preserved)
	for _, outcome := range report.Outcomes {
		assert.NotEqual(t, "parked1", outcome.SessionID)
	}
}
