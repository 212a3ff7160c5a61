package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/errors"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/config"
	"whatsam/internal/infrastructure/logger"
	"whatsam/internal/infrastructure/metrics"

	"github.com/sony/gobreaker/v2"
)

// Client mirrors this worker's state to the control-plane backend:
// registration, heartbeat, per-transition webhooks, assignment fetch,
// recovery reporting and unregistration. Webhook and heartbeat failures
// are logged and swallowed; they never reach the session lifecycle.
type Client struct {
	cfg      config.BackendConfig
	identity entity.WorkerIdentity
	http     *http.Client
	lister   repository.SessionLister
	breaker  *gobreaker.CircuitBreaker[[]byte]
	log      logger.Logger
}

var _ repository.RegistryClient = (*Client)(nil)

// New creates the registry client. The session lister is wired after
// construction to break the engine/registry cycle.
func New(cfg *config.Config, log logger.Logger) *Client {
	c := &Client{
		cfg: cfg.Backend,
		identity: entity.WorkerIdentity{
			ID:          cfg.Worker.ID,
			Endpoint:    cfg.Worker.Endpoint,
			MaxSessions: cfg.Worker.MaxSessions,
			Description: cfg.Worker.Description,
			Version:     Version,
			Environment: cfg.Worker.Environment,
		},
		http: &http.Client{},
		log:  log.WithComponent("registry"),
	}

	if cfg.CircuitBreaker.Enabled {
		failureThreshold := cfg.CircuitBreaker.FailureThreshold
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "backend",
			MaxRequests: cfg.CircuitBreaker.MaxRequests,
			Interval:    cfg.CircuitBreaker.Interval,
			Timeout:     cfg.CircuitBreaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.log.Warn("backend circuit breaker state change",
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			},
		})
	}

	return c
}

// Version is the worker software version advertised on registration.
const Version = "1.0.0"

// SetSessionLister wires the engine's read surface for heartbeats.
func (c *Client) SetSessionLister(lister repository.SessionLister) {
	c.lister = lister
}

// Enabled reports whether backend coupling is configured.
func (c *Client) Enabled() bool {
	return c.cfg.RegistrationActive()
}

// Register announces the worker, retrying with fixed back-off. The
// configured startup delay precedes the first attempt so the backend has
// time to come up.
func (c *Client) Register(ctx context.Context) (*entity.RegistrationResult, error) {
	if !c.Enabled() {
		return nil, errors.ErrRegistrationFailed.WithMessage("registration disabled")
	}

	if c.cfg.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, errors.ErrRegistrationFailed.WithCause(ctx.Err())
		case <-time.After(c.cfg.StartupDelay):
		}
	}

	body := map[string]interface{}{
		"workerId":    c.identity.ID,
		"endpoint":    c.identity.Endpoint,
		"maxSessions": c.identity.MaxSessions,
		"description": c.identity.Description,
		"version":     c.identity.Version,
		"environment": c.identity.Environment,
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRegistrationRetries; attempt++ {
		data, err := c.do(ctx, http.MethodPost, "/api/v1/workers/register", body, c.cfg.RegistrationTimeout)
		if err == nil {
			var result entity.RegistrationResult
			if err := json.Unmarshal(data, &result); err != nil {
				return nil, errors.ErrRegistrationFailed.WithCause(err).WithMessage("malformed registration response")
			}
			c.log.Info("worker registered",
				logger.String("worker_id", c.identity.ID),
				logger.Bool("recovery_required", result.RecoveryRequired),
				logger.Int("assigned_sessions", result.AssignedSessionCount))
			return &result, nil
		}

		lastErr = err
		c.log.Warn("registration attempt failed",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", c.cfg.MaxRegistrationRetries),
			logger.Err(err))

		if attempt < c.cfg.MaxRegistrationRetries {
			select {
			case <-ctx.Done():
				return nil, errors.ErrRegistrationFailed.WithCause(ctx.Err())
			case <-time.After(c.cfg.RegistrationRetryDelay):
			}
		}
	}

	return nil, errors.ErrRegistrationFailed.WithCause(lastErr)
}

// StartHeartbeat runs the periodic heartbeat until the context ends.
func (c *Client) StartHeartbeat(ctx context.Context) {
	if !c.Enabled() {
		return
	}

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.heartbeat(ctx)
			}
		}
	}()
}

type sessionHeartbeat struct {
	SessionID   string               `json:"sessionId"`
	UserID      string               `json:"userId"`
	Status      entity.BackendStatus `json:"status"`
	PhoneNumber string               `json:"phoneNumber,omitempty"`
	LastSeen    time.Time            `json:"lastSeen"`
}

func (c *Client) heartbeat(ctx context.Context) {
	if c.lister == nil {
		return
	}

	snapshots := c.lister.List()
	sessions := make([]sessionHeartbeat, 0, len(snapshots))
	active := 0
	for _, snap := range snapshots {
		if snap.IsConnected {
			active++
		}
		sessions = append(sessions, sessionHeartbeat{
			SessionID:   snap.ID,
			UserID:      snap.UserID,
			Status:      snap.Status.ToBackendStatus(),
			PhoneNumber: snap.PhoneNumber,
			LastSeen:    snap.LastSeen,
		})
	}

	proc := metrics.Process()
	body := map[string]interface{}{
		"sessions": sessions,
		"metrics": map[string]interface{}{
			"cpuPercent":      proc.CPUPercent,
			"heapUsedPercent": proc.HeapUsedPercent,
			"uptimeSeconds":   proc.UptimeSeconds,
			"totalSessions":   len(sessions),
			"activeSessions":  active,
		},
		"timestamp": time.Now(),
	}

	path := fmt.Sprintf("/api/v1/workers/%s/heartbeat", c.identity.ID)
	if _, err := c.do(ctx, http.MethodPut, path, body, c.cfg.HeartbeatTimeout); err != nil {
		c.log.Warn("heartbeat failed", logger.Err(err))
	}
}

// NotifySessionStatus posts a session-status webhook as a fire-and-forget
// task.
func (c *Client) NotifySessionStatus(event entity.SessionStatusEvent) {
	if !c.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WebhookTimeout)
		defer cancel()
		if _, err := c.do(ctx, http.MethodPost, "/api/v1/webhooks/session-status", event, c.cfg.WebhookTimeout); err != nil {
			c.log.Warn("session-status webhook failed",
				logger.String("endpoint", "/api/v1/webhooks/session-status"),
				logger.String("session_id", event.SessionID),
				logger.String("event", string(event.Type)),
				logger.Err(err))
		}
	}()
}

// NotifyMessageStatus posts a message-status webhook as a fire-and-forget
// task.
func (c *Client) NotifyMessageStatus(event entity.MessageStatusEvent) {
	if !c.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WebhookTimeout)
		defer cancel()
		if _, err := c.do(ctx, http.MethodPost, "/api/v1/webhooks/message-status", event, c.cfg.WebhookTimeout); err != nil {
			c.log.Warn("message-status webhook failed",
				logger.String("endpoint", "/api/v1/webhooks/message-status"),
				logger.String("session_id", event.SessionID),
				logger.String("message_id", event.MessageID),
				logger.Err(err))
		}
	}()
}

// FetchAssignments returns the sessions this worker must resume. A 404
// means none.
func (c *Client) FetchAssignments(ctx context.Context) ([]entity.Assignment, error) {
	path := fmt.Sprintf("/api/v1/workers/%s/sessions/assigned", c.identity.ID)
	data, err := c.do(ctx, http.MethodGet, path, nil, c.cfg.AssignmentFetchTimeout)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.ErrBackendUnavailable.WithCause(err)
	}

	var payload struct {
		Sessions []entity.Assignment `json:"sessions"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.ErrBackendUnavailable.WithCause(err).WithMessage("malformed assignment response")
	}
	return payload.Sessions, nil
}

// ReportRecovery posts per-session recovery outcomes and summary counts.
func (c *Client) ReportRecovery(ctx context.Context, report *entity.RecoveryReport) error {
	path := fmt.Sprintf("/api/v1/workers/%s/sessions/recovery-status", c.identity.ID)
	if _, err := c.do(ctx, http.MethodPost, path, report, c.cfg.RecoveryReportTimeout); err != nil {
		return errors.ErrBackendUnavailable.WithCause(err)
	}
	return nil
}

// Unregister removes the worker from the backend. Failures are logged,
// never fatal: this runs during shutdown.
func (c *Client) Unregister(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	path := fmt.Sprintf("/api/v1/workers/%s", c.identity.ID)
	if _, err := c.do(ctx, http.MethodDelete, path, nil, c.cfg.RegistrationTimeout); err != nil {
		c.log.Warn("unregister failed", logger.Err(err))
	} else {
		c.log.Info("worker unregistered")
	}
	return nil
}

// statusError carries the HTTP status of a non-2xx backend answer.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

// do performs one backend HTTP call through the circuit breaker.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, timeout time.Duration) ([]byte, error) {
	call := func() ([]byte, error) {
		return c.doRaw(ctx, method, path, body, timeout)
	}
	if c.breaker == nil {
		return call()
	}
	data, err := c.breaker.Execute(call)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errors.ErrBackendUnavailable.WithCause(err)
	}
	return data, err
}

func (c *Client) doRaw(ctx context.Context, method, path string, body interface{}, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(data), 200)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
