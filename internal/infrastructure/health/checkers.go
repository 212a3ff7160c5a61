package health

import (
	"context"
	"sync/atomic"
	"time"

	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/metrics"
)

// Report is the /health response body: overall flag, per-dependency
// flags, session statistics and a process snapshot.
type Report struct {
	Healthy      bool                    `json:"healthy"`
	Dependencies map[string]bool         `json:"dependencies"`
	Sessions     entity.Statistics       `json:"sessions"`
	Process      metrics.ProcessSnapshot `json:"process"`
	Timestamp    time.Time               `json:"timestamp"`
}

// Checker aggregates dependency probes for the health endpoints. Overall
// health follows the protocol service alone; the store and backend flags
// are informational.
type Checker struct {
	factory repository.ProtocolFactory
	store   repository.AuthStore
	lister  repository.SessionLister
	backend repository.RegistryClient

	ready atomic.Bool
}

// NewChecker creates the health checker.
func NewChecker(factory repository.ProtocolFactory, store repository.AuthStore,
	lister repository.SessionLister, backend repository.RegistryClient) *Checker {
	return &Checker{
		factory: factory,
		store:   store,
		lister:  lister,
		backend: backend,
	}
}

// MarkReady flips the readiness flag once core services are initialized.
func (c *Checker) MarkReady() {
	c.ready.Store(true)
}

// Ready reports whether core services finished initializing.
func (c *Checker) Ready() bool {
	return c.ready.Load()
}

// Check runs the dependency probes.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	protocolOK := c.factory.Healthy(ctx)
	report := Report{
		Healthy: protocolOK,
		Dependencies: map[string]bool{
			"protocol":     protocolOK,
			"object_store": c.store.Healthy(ctx),
			"backend":      c.backend.Enabled(),
		},
		Process:   metrics.Process(),
		Timestamp: time.Now(),
	}
	if c.lister != nil {
		report.Sessions = c.lister.Statistics()
	}
	return report
}
