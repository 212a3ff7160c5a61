package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"whatsam/internal/domain/entity"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   []byte
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   map[string]int // path -> forced status
	failures int            // initial 5xx answers before success
	server   *httptest.Server
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{status: make(map[string]int)}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		b.mu.Lock()
		b.requests = append(b.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		if b.failures > 0 {
			b.failures--
			b.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		forced := b.status[r.URL.Path]
		b.mu.Unlock()

		if forced != 0 {
			w.WriteHeader(forced)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/workers/register":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"recoveryRequired":     true,
				"assignedSessionCount": 2,
			})
		case "/api/v1/workers/w1/sessions/assigned":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"sessions": []entity.Assignment{
					{SessionID: "s5", UserID: "u5", Status: entity.BackendConnected},
					{SessionID: "s6", UserID: "u6", Status: entity.BackendQRRequired},
				},
			})
		default:
			_, _ = w.Write([]byte("{}"))
		}
	}))
	return b
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (b *fakeBackend) last(path string) *recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.requests) - 1; i >= 0; i-- {
		if b.requests[i].Path == path {
			r := b.requests[i]
			return &r
		}
	}
	return nil
}

type fakeLister struct{ snaps []entity.Snapshot }

func (f *fakeLister) List() []entity.Snapshot { return f.snaps }
func (f *fakeLister) Statistics() entity.Statistics {
	var st entity.Statistics
	for _, s := range f.snaps {
		st.Add(s.Status)
	}
	return st
}

func testClient(t *testing.T, backend *fakeBackend, mutate func(*config.Config)) *Client {
	t.Helper()
	cfg := &config.Config{}
	cfg.Worker.ID = "w1"
	cfg.Worker.Endpoint = "http://worker:8001"
	cfg.Worker.MaxSessions = 50
	cfg.Worker.Environment = "test"
	cfg.Backend = config.BackendConfig{
		URL:                    backend.server.URL,
		AuthToken:              "secret-token",
		RegistrationEnabled:    true,
		HeartbeatInterval:      20 * time.Millisecond,
		MaxRegistrationRetries: 3,
		RegistrationRetryDelay: 10 * time.Millisecond,
		StartupDelay:           0,
		WebhookTimeout:         time.Second,
		HeartbeatTimeout:       time.Second,
		RegistrationTimeout:    time.Second,
		AssignmentFetchTimeout: time.Second,
		RecoveryReportTimeout:  time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, logger.Nop())
}

func TestRegisterSendsIdentityAndBearer(t *testing.T) {
	backend := newFakeBackend()
	defer backend.server.Close()

	client := testClient(t, backend, nil)
	result, err := client.Register(context.Background())
	require.NoError(t, err)
	assert.True(t, result.RecoveryRequired)
	assert.Equal(t, 2, result.AssignedSessionCount)

	req := backend.last("/api/v1/workers/register")
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "Bearer secret-token", req.Auth)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "w1", body["workerId"])
	assert.Equal(t, float64(50), body["maxSessions"])
}

func TestRegisterRetriesWithFixedBackoff(t *testing.T) {
	backend := newFakeBackend()
	defer backend.server.Close()
	backend.failures = 2

	client := testClient(t, backend, nil)
	_, err := client.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, backend.count("/api/v1/workers/register"))
}

func TestRegisterGivesUpAfterMaxRetries(t *testing.T) {
	backend := newFakeBackend()
	defer backend.server.Close()
	backend.failures = 10

	client := testClient(t, backend, func(cfg *config.Config) {
		cfg.CircuitBreaker.Enabled = false
	})
	_, err := client.Register(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, backend.count("/api/v1/workers/register"))
}

func TestStandaloneModeDisablesBackend(t *testing.T) {
	backend := newFakeBackend()
	defer backend.server.Close()

	client := testClient(t, backend, func(cfg *config.Config) {
		cfg.Backend.StandaloneMode = true
	})
	assert.False(t, client.Enabled())

	client.NotifySessionStatus(entity.SessionStatusEvent{SessionID: "s1"})
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, backend.count("/api/v1/webhooks/session-status"))
}

func TestHeartbeatCarriesSessionsAndMetrics(t *testing.T) {
	backend := newFakeBackend()
	defer backend.server.Close()

	client := testClient(t, backend, nil)
	client.SetSessionLister(&fakeLister{snaps: []entity.Snapshot{
		{Session: entity.Session{ID: "s1", UserID: "u1", Status: entity.StatusConnected, PhoneNumber: "+49170"}, IsConnected: true},
		{Session: entity.Session{ID: "s2", UserID: "u2", Status: entity.StatusQRReady}},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.StartHeartbeat(ctx)

	require.Eventually(t, func() bool {
		return backend.count("/api/v1/workers/w1/heartbeat") >= 1
	}, 2*time.Second, 10*time.Millisecond)

	req := backend.last("/api/v1/workers/w1/heartbeat")
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPut, req.Method)

	var body struct {
		Sessions []map[string]interface{} `json:"sessions"`
		Metrics  map[string]interface{}   `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	require.Len(t, body.Sessions, 2)
	assert.Equal(t, "CONNECTED", body.Sessions[0]["status"])
	assert.Equal(t, "QR_REQUIRED", body.Sessions[1]["status"])
	assert.Equal(t, float64(2), body.Metrics["totalSessions"])
	assert.Equal(t, float64(1), body.Metrics["activeSessions"])
	assert.Contains(t, body.Metrics, "heapUsedPercent")
	assert.Contains(t, body.Metrics, "uptimeSeconds")
}

func TestSessionStatusWebhookFireAndForget(t *testing.T) {
	backend := newFakeBackend()
	defer backend.server.Close()

	client := testClient(t, backend, nil)
	client.NotifySessionStatus(entity.SessionStatusEvent{
		Type:      entity.EventQRReady,
		SessionID: "s1",
		Status:    entity.BackendQRRequired,
		QRCode:    "qrA",
		Timestamp: time.Now(),
	})

	require.Eventually(t, func() bool {
		return backend.count("/api/v1/webhooks/session-status") == 1
	}, 2*time.Second, 10*time.Millisecond)

	req := backend.last("/api/v1/webhooks/session-status")
	var body entity.SessionStatusEvent
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "s1", body.SessionID)
	assert.Equal(t, "qrA", body.QRCode)
	assert.Equal(t, entity.BackendQRRequired, body.Status)
}

func TestFetchAssignments(t *testing.T) {
	backend := newFakeBackend()
	defer backend.server.Close()

	client := testClient(t, backend, nil)
	assignments, err := client.FetchAssignments(context.Background())
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.Equal(t, "s5", assignments[0].SessionID)
	assert.True(t, assignments[0].Recoverable())
}

func TestFetchAssignmentsNotFoundMeansNone(t *testing.T) {
	backend := newFakeBackend()
	defer backend.server.Close()
	backend.status["/api/v1/workers/w1/sessions/assigned"] = http.StatusNotFound

	client := testClient(t, backend, nil)
	assignments, err := client.FetchAssignments(context.Background())
	require.NoError(t, err)
	assert.Nil(t, assignments)
}

func TestReportRecovery(t *testing.T) {
	backend := newFakeBackend()
	defer backend.server.Close()

	client := testClient(t, backend, nil)
	report := &entity.RecoveryReport{WorkerID: "w1", Timestamp: time.Now()}
	report.Record(entity.RecoveryOutcome{SessionID: "s5", Result: entity.RecoveryRecovered})
	report.Record(entity.RecoveryOutcome{SessionID: "s6", Result: entity.RecoveryFailed, Error: "no creds"})

	require.NoError(t, client.ReportRecovery(context.Background(), report))

	req := backend.last("/api/v1/workers/w1/sessions/recovery-status")
	require.NotNil(t, req)

	var body entity.RecoveryReport
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, 1, body.Recovered)
	assert.Equal(t, 1, body.Failed)
	assert.Len(t, body.Outcomes, 2)
}

func TestUnregisterNeverFails(t *testing.T) {
	backend := newFakeBackend()
	backend.server.Close() // backend gone

	client := testClient(t, backend, nil)
	assert.NoError(t, client.Unregister(context.Background()))
}
