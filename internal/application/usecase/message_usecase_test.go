package usecase

import (
	"context"
	"testing"
	"time"

	"whatsam/internal/application/dto"
	"whatsam/internal/application/engine"
	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/errors"
	"whatsam/internal/infrastructure/logger"
	"whatsam/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupConnected(t *testing.T, sessionID string) (*MessageUseCase, *mocks.FakeProtocolClient) {
	t.Helper()

	factory := mocks.NewFakeProtocolFactory()
	store := mocks.NewFakeAuthStore()
	notifier := mocks.NewRecordingNotifier()

	cfg := engine.Config{
		MaxQRAttempts:        3,
		QRTimeout:            time.Second,
		QRTerminalTimeout:    time.Second,
		AutoDisconnectGrace:  time.Second,
		ReconnectInterval:    10 * time.Millisecond,
		RecoveredReconnect:   10 * time.Millisecond,
		TimedOutReconnect:    10 * time.Millisecond,
		MaxReconnectAttempts: 3,
		QueryTimeout:         time.Second,
		BulkMessageDelay:     5 * time.Millisecond,
		BulkMaxMessages:      100,
	}
	eng := engine.New(cfg, factory, store, notifier, nil, logger.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		eng.Shutdown(ctx)
	})

	_, err := eng.Create(context.Background(), sessionID, "u1", "", false)
	require.NoError(t, err)
	client := factory.Latest(sessionID)
	client.EmitOpen("628100000:1@s.whatsapp.net", "")
	require.Eventually(t, func() bool {
		snap, err := eng.GetStatus(sessionID)
		return err == nil && snap.Status == entity.StatusConnected
	}, 2*time.Second, 5*time.Millisecond)

	return NewMessageUseCase(eng), client
}

func simOff() *bool {
	off := false
	return &off
}

func TestSendText(t *testing.T) {
	uc, client := setupConnected(t, "m1")

	result, err := uc.Send(context.Background(), "m1", &dto.SendMessageRequest{
		To:              "+491700000000",
		Type:            "text",
		Text:            "hello",
		HumanSimulation: simOff(),
	})
	require.NoError(t, err)
	assert.Equal(t, "MSG-1", result.MessageID)
	assert.Equal(t, 1, client.SentCount())
}

func TestSendRejectsUnknownType(t *testing.T) {
	uc, _ := setupConnected(t, "m02")

	_, err := uc.Send(context.Background(), "m02", &dto.SendMessageRequest{
		To:   "+49170",
		Type: "carrier-pigeon",
	})
	assert.ErrorIs(t, err, errors.ErrInvalidMessageType)
}

func TestSendRejectsBadBase64Media(t *testing.T) {
	uc, _ := setupConnected(t, "m03")

	_, err := uc.Send(context.Background(), "m03", &dto.SendMessageRequest{
		To:    "+49170",
		Type:  "image",
		Media: "%%%not-base64%%%",
	})
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
}

// Bulk of three with one missing recipient and one recipient the
// protocol rejects: one result, two errors, indexed by request position.
func TestSendBulkPartitioning(t *testing.T) {
	uc, client := setupConnected(t, "m04")
	client.FailTo = map[string]error{"+000": mocks.ErrFakeSend}

	resp := uc.SendBulk(context.Background(), "m04", &dto.BulkSendRequest{
		HumanSimulation: simOff(),
		Messages: []dto.SendMessageRequest{
			{To: "+491700000000", Type: "text", Text: "ok"},
			{Type: "text", Text: "missing to"},
			{To: "+000", Type: "text", Text: "rejected"},
		},
	})

	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Results, 1)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, 0, resp.Results[0].Index)

	errorIndices := []int{resp.Errors[0].Index, resp.Errors[1].Index}
	assert.ElementsMatch(t, []int{1, 2}, errorIndices)

	// No index appears in both partitions.
	for _, r := range resp.Results {
		for _, e := range resp.Errors {
			assert.NotEqual(t, r.Index, e.Index)
		}
	}
}
