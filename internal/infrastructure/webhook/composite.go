package webhook

import (
	"whatsam/internal/domain/entity"
	"whatsam/internal/domain/repository"
)

// CompositeNotifier fans one state transition out to several notifiers
// (backend webhooks, live stream subscribers). Each target is
// fire-and-forget on its own; the composite adds no waiting.
type CompositeNotifier struct {
	targets []repository.StatusNotifier
}

var _ repository.StatusNotifier = (*CompositeNotifier)(nil)

// NewCompositeNotifier creates a composite over the given targets; nil
// entries are skipped.
func NewCompositeNotifier(targets ...repository.StatusNotifier) *CompositeNotifier {
	filtered := make([]repository.StatusNotifier, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			filtered = append(filtered, t)
		}
	}
	return &CompositeNotifier{targets: filtered}
}

// NotifySessionStatus forwards to every target.
func (c *CompositeNotifier) NotifySessionStatus(event entity.SessionStatusEvent) {
	for _, t := range c.targets {
		t.NotifySessionStatus(event)
	}
}

// NotifyMessageStatus forwards to every target.
func (c *CompositeNotifier) NotifyMessageStatus(event entity.MessageStatusEvent) {
	for _, t := range c.targets {
		t.NotifyMessageStatus(event)
	}
}
