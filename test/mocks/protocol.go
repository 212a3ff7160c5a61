// Package mocks provides test doubles for the protocol library and the
// auth state store so lifecycle tests run without a WhatsApp connection.
package mocks

import (
	"context"
	"sync"

	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/errors"
	"whatsam/internal/domain/repository"
)

// FakeProtocolClient is a scriptable protocol client: tests emit events
// into it and inspect what the engine sent.
type FakeProtocolClient struct {
	mu sync.Mutex

	SessionID     string
	Authenticated bool
	ConnectErr    error
	SendErr       error
	FailTo        map[string]error // per-recipient send failures
	NextMessageID string

	Sent      []*entity.OutboundMessage
	Presences []repository.PresenceState
	MarkReads [][]string

	LogoutCalled bool
	EndCalled    bool

	events chan repository.ProtocolEvent
	done   chan struct{}
}

// NewFakeProtocolClient creates an idle fake client.
func NewFakeProtocolClient(sessionID string) *FakeProtocolClient {
	return &FakeProtocolClient{
		SessionID:     sessionID,
		NextMessageID: "MSG-1",
		events:        make(chan repository.ProtocolEvent, 32),
		done:          make(chan struct{}),
	}
}

// Emit pushes one protocol event to the engine.
func (c *FakeProtocolClient) Emit(evt repository.ProtocolEvent) {
	select {
	case c.events <- evt:
	case <-c.done:
	}
}

// EmitQR pushes a pairing challenge.
func (c *FakeProtocolClient) EmitQR(code string) {
	c.Emit(repository.ProtocolEvent{Kind: repository.ProtocolEventQR, QR: code})
}

// EmitOpen pushes the open transition and flips authentication on.
func (c *FakeProtocolClient) EmitOpen(jid, pushName string) {
	c.mu.Lock()
	c.Authenticated = true
	c.mu.Unlock()
	c.Emit(repository.ProtocolEvent{
		Kind:     repository.ProtocolEventOpen,
		JID:      jid,
		PushName: pushName,
	})
}

// EmitClose pushes a disconnect with the given cause.
func (c *FakeProtocolClient) EmitClose(statusCode int, message string) {
	c.Emit(repository.ProtocolEvent{
		Kind:       repository.ProtocolEventClose,
		StatusCode: statusCode,
		Message:    message,
	})
}

func (c *FakeProtocolClient) Events() <-chan repository.ProtocolEvent {
	return c.events
}

func (c *FakeProtocolClient) Connect(ctx context.Context) error {
	return c.ConnectErr
}

func (c *FakeProtocolClient) SendMessage(ctx context.Context, msg *entity.OutboundMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	if err, ok := c.FailTo[msg.To]; ok {
		return "", err
	}
	c.Sent = append(c.Sent, msg)
	return c.NextMessageID, nil
}

func (c *FakeProtocolClient) SendPresence(ctx context.Context, state repository.PresenceState, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Presences = append(c.Presences, state)
	return nil
}

func (c *FakeProtocolClient) MarkRead(ctx context.Context, to string, messageIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MarkReads = append(c.MarkReads, messageIDs)
	return nil
}

func (c *FakeProtocolClient) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Authenticated
}

func (c *FakeProtocolClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LogoutCalled = true
	c.Authenticated = false
	return nil
}

func (c *FakeProtocolClient) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EndCalled {
		return
	}
	c.EndCalled = true
	close(c.done)
}

// SentCount returns how many messages hit the wire.
func (c *FakeProtocolClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// PresenceTrail returns the presence states sent so far.
func (c *FakeProtocolClient) PresenceTrail() []repository.PresenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]repository.PresenceState, len(c.Presences))
	copy(out, c.Presences)
	return out
}

// FakeProtocolFactory hands out fake clients and remembers them per
// session, newest last.
type FakeProtocolFactory struct {
	mu sync.Mutex

	NewErr    error
	NewErrs   map[string]error // per-session create failures
	ByID      map[string][]*FakeProtocolClient
	Authed    map[string]bool // sessions whose next client starts authenticated
	Unhealthy bool
}

// NewFakeProtocolFactory creates an empty factory.
func NewFakeProtocolFactory() *FakeProtocolFactory {
	return &FakeProtocolFactory{
		ByID:    make(map[string][]*FakeProtocolClient),
		NewErrs: make(map[string]error),
		Authed:  make(map[string]bool),
	}
}

func (f *FakeProtocolFactory) New(ctx context.Context, sessionID, authDir string) (repository.ProtocolClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	if err, ok := f.NewErrs[sessionID]; ok {
		return nil, err
	}
	client := NewFakeProtocolClient(sessionID)
	client.Authenticated = f.Authed[sessionID]
	f.ByID[sessionID] = append(f.ByID[sessionID], client)
	return client, nil
}

func (f *FakeProtocolFactory) Healthy(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Unhealthy
}

// Latest returns the most recent client created for the session.
func (f *FakeProtocolFactory) Latest(sessionID string) *FakeProtocolClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	clients := f.ByID[sessionID]
	if len(clients) == 0 {
		return nil
	}
	return clients[len(clients)-1]
}

// Count returns how many clients were created for the session.
func (f *FakeProtocolFactory) Count(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ByID[sessionID])
}

// FakeAuthStore is an in-memory auth state store tracking snapshot,
// restore and purge calls.
type FakeAuthStore struct {
	mu sync.Mutex

	Dirs       map[string]bool
	Snapshots  map[string]int
	Restores   map[string]int
	Purges     map[string]int
	RestoreErr error
	Unhealthy  bool
}

// NewFakeAuthStore creates an empty store.
func NewFakeAuthStore() *FakeAuthStore {
	return &FakeAuthStore{
		Dirs:      make(map[string]bool),
		Snapshots: make(map[string]int),
		Restores:  make(map[string]int),
		Purges:    make(map[string]int),
	}
}

func (s *FakeAuthStore) EnsureLocal(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Dirs[sessionID] = true
	return "/tmp/fake-auth/" + sessionID, nil
}

func (s *FakeAuthStore) HasLocal(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Dirs[sessionID]
}

func (s *FakeAuthStore) Snapshot(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshots[sessionID]++
	return nil
}

func (s *FakeAuthStore) Restore(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Restores[sessionID]++
	if s.RestoreErr != nil {
		return s.RestoreErr
	}
	s.Dirs[sessionID] = true
	return nil
}

func (s *FakeAuthStore) Purge(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Purges[sessionID]++
	delete(s.Dirs, sessionID)
	return nil
}

func (s *FakeAuthStore) UploadMedia(ctx context.Context, sessionID, fileName string, data []byte, contentType string) (string, error) {
	return "https://store.local/media/" + sessionID + "/" + fileName, nil
}

func (s *FakeAuthStore) Healthy(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.Unhealthy
}

// PurgeCount returns how often a session's auth was purged.
func (s *FakeAuthStore) PurgeCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Purges[sessionID]
}

// SnapshotCount returns how often a session's auth was mirrored.
func (s *FakeAuthStore) SnapshotCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Snapshots[sessionID]
}

// ErrFakeSend is a canned permanent send failure for tests.
var ErrFakeSend = errors.ErrInvalidPhoneNumber.WithMessage("fake: malformed recipient")
