package mocks

import (
	"context"
	"sync"

	"whatsam/internal/domain/entity"
)

// FakeRegistry is a scriptable registry client for recovery tests.
type FakeRegistry struct {
	mu sync.Mutex

	Disabled    bool
	Assignments []entity.Assignment
	FetchErr    error
	ReportErr   error

	Reports        []*entity.RecoveryReport
	SessionEvts    []entity.SessionStatusEvent
	MessageEvts    []entity.MessageStatusEvent
	RegisterResult entity.RegistrationResult
}

func (f *FakeRegistry) Enabled() bool { return !f.Disabled }

func (f *FakeRegistry) Register(ctx context.Context) (*entity.RegistrationResult, error) {
	result := f.RegisterResult
	return &result, nil
}

func (f *FakeRegistry) StartHeartbeat(ctx context.Context) {}

func (f *FakeRegistry) FetchAssignments(ctx context.Context) ([]entity.Assignment, error) {
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return f.Assignments, nil
}

func (f *FakeRegistry) ReportRecovery(ctx context.Context, report *entity.RecoveryReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReportErr != nil {
		return f.ReportErr
	}
	f.Reports = append(f.Reports, report)
	return nil
}

func (f *FakeRegistry) Unregister(ctx context.Context) error { return nil }

func (f *FakeRegistry) NotifySessionStatus(event entity.SessionStatusEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SessionEvts = append(f.SessionEvts, event)
}

func (f *FakeRegistry) NotifyMessageStatus(event entity.MessageStatusEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MessageEvts = append(f.MessageEvts, event)
}

// LastReport returns the most recent recovery report, if any.
func (f *FakeRegistry) LastReport() *entity.RecoveryReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Reports) == 0 {
		return nil
	}
	return f.Reports[len(f.Reports)-1]
}
