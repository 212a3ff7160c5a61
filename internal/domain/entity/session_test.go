package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusBackendMapping(t *testing.T) {
	tests := []struct {
		in   Status
		want BackendStatus
	}{
		{StatusConnected, BackendConnected},
		{StatusQRReady, BackendQRRequired},
		{StatusReconnecting, BackendReconnecting},
		{StatusInitializing, BackendInit},
		{StatusLoggedOut, BackendLoggedOut},
		{StatusDisconnected, BackendDisconnected},
		{StatusAutoDisconnected, BackendDisconnected},
		{StatusFailed, BackendDisconnected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.ToBackendStatus(), string(tt.in))
	}
}

func TestStatusTerminality(t *testing.T) {
	assert.True(t, StatusLoggedOut.IsTerminal())
	assert.True(t, StatusAutoDisconnected.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusDisconnected.IsTerminal(), "DISCONNECTED is quasi-terminal: Start revives it")
	assert.False(t, StatusConnected.IsTerminal())
}

func TestSetStatusStampsTimestamps(t *testing.T) {
	s := NewSession("s1", "u1", "")
	require.Equal(t, StatusInitializing, s.Status)
	assert.Nil(t, s.ConnectedAt)

	s.SetStatus(StatusConnected)
	require.NotNil(t, s.ConnectedAt)
	assert.WithinDuration(t, time.Now(), *s.ConnectedAt, time.Second)

	s.SetStatus(StatusLoggedOut)
	require.NotNil(t, s.LoggedOutAt)
}

func TestStatisticsAdd(t *testing.T) {
	var st Statistics
	for _, s := range []Status{
		StatusConnected, StatusConnected, StatusQRReady,
		StatusReconnecting, StatusFailed,
	} {
		st.Add(s)
	}
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 2, st.Connected)
	assert.Equal(t, 1, st.QRReady)
	assert.Equal(t, 1, st.Reconnecting)
	assert.Equal(t, 1, st.Failed)
}

func TestQRChallengeTerminalAttempt(t *testing.T) {
	qr := NewQRChallenge("s1", "code", 3, 3, 30*time.Second)
	assert.True(t, qr.MaxAttemptsReached)
	assert.False(t, qr.Expired())

	expired := NewQRChallenge("s1", "code", 1, 3, -time.Second)
	assert.True(t, expired.Expired())
}
