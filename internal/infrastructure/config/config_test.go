package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Worker.MaxSessions)
	assert.NotEmpty(t, cfg.Worker.ID, "worker id is generated when absent")

	assert.Equal(t, 30*time.Second, cfg.Backend.HeartbeatInterval)
	assert.Equal(t, 5, cfg.Backend.MaxRegistrationRetries)
	assert.Equal(t, 5*time.Second, cfg.Backend.RegistrationRetryDelay)
	assert.Equal(t, 5*time.Second, cfg.Backend.StartupDelay)
	assert.False(t, cfg.Backend.RegistrationActive(), "no backend URL means no registration")

	assert.Equal(t, 60*time.Second, cfg.WhatsApp.QRTimeout)
	assert.Equal(t, 30*time.Second, cfg.WhatsApp.QRTerminalTimeout)
	assert.Equal(t, 3, cfg.WhatsApp.MaxQRAttempts)
	assert.Equal(t, 30*time.Second, cfg.WhatsApp.AutoDisconnectGrace)
	assert.Equal(t, 5*time.Second, cfg.WhatsApp.ReconnectInterval)
	assert.Equal(t, 100, cfg.WhatsApp.BulkMaxMessages)
	assert.Equal(t, time.Second, cfg.WhatsApp.BulkMessageDelay)

	assert.True(t, cfg.Recovery.Enabled)
	assert.Equal(t, "whatsam-sessions", cfg.Store.BucketSessions)
}

// The deployment surface passes durations as bare millisecond integers.
func TestMillisecondDurations(t *testing.T) {
	v := viper.New()
	v.Set("backend.heartbeat_interval", "45000")
	v.Set("whatsapp.qr_timeout", 90000)
	v.Set("backend.startup_delay", "2500")

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Backend.HeartbeatInterval)
	assert.Equal(t, 90*time.Second, cfg.WhatsApp.QRTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.Backend.StartupDelay)
}

func TestDurationStringsStillParse(t *testing.T) {
	v := viper.New()
	v.Set("backend.heartbeat_interval", "1m30s")

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Backend.HeartbeatInterval)
}

func TestValidateRejectsBadPort(t *testing.T) {
	v := viper.New()
	v.Set("server.port", 0)

	_, err := LoadWithViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateRequiresTokenWithBackend(t *testing.T) {
	v := viper.New()
	v.Set("backend.url", "http://backend:3000")

	_, err := LoadWithViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.auth_token")
}

func TestStandaloneModeSkipsTokenRequirement(t *testing.T) {
	v := viper.New()
	v.Set("backend.url", "http://backend:3000")
	v.Set("backend.standalone_mode", true)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.False(t, cfg.Backend.RegistrationActive())
}

func TestStoreAddress(t *testing.T) {
	cfg := StoreConfig{Endpoint: "minio.local", Port: 9000}
	assert.Equal(t, "minio.local:9000", cfg.Address())

	cfg = StoreConfig{Endpoint: "minio.local:9100", Port: 9000}
	assert.Equal(t, "minio.local:9100", cfg.Address())
}

func TestWorkerIDIsStablePerLoad(t *testing.T) {
	v := viper.New()
	v.Set("worker.id", "worker-fixed")

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, "worker-fixed", cfg.Worker.ID)
}
