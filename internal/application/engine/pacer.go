package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"whatsam/internal/domain/repository"
	"whatsam/internal/infrastructure/logger"
)

// Pacer delay bounds, milliseconds.
const (
	readDelayMin    = 300
	readDelayMax    = 500
	typingDelayMin  = 1000
	typingDelayMax  = 2000
	preSendDelayMin = 400
	preSendDelayMax = 1000
)

// Pacer choreographs presence updates and randomized delays before an
// outbound send so traffic resembles a human typing. Presence failures
// are non-fatal; the send proceeds regardless.
type Pacer struct {
	mu  sync.Mutex
	rng *rand.Rand
	log logger.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer with its own random source.
func NewPacer(log logger.Logger) *Pacer {
	return &Pacer{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		log:   log.WithComponent("pacer"),
		sleep: sleepCtx,
	}
}

// Delays produces the three randomized delays for one send, each drawn
// independently.
func (p *Pacer) Delays() (read, typing, preSend time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	read = randomDelay(p.rng, readDelayMin, readDelayMax)
	typing = randomDelay(p.rng, typingDelayMin, typingDelayMax)
	preSend = randomDelay(p.rng, preSendDelayMin, preSendDelayMax)
	return read, typing, preSend
}

// Pace runs the presence choreography: sleep(read), available, composing,
// sleep(typing), paused, sleep(preSend). The caller sends immediately
// after, then restores available.
func (p *Pacer) Pace(ctx context.Context, client repository.ProtocolClient, to string) error {
	read, typing, preSend := p.Delays()

	if err := p.sleep(ctx, read); err != nil {
		return err
	}
	p.presence(ctx, client, repository.PresenceAvailable, "")
	p.presence(ctx, client, repository.PresenceComposing, to)

	if err := p.sleep(ctx, typing); err != nil {
		return err
	}
	p.presence(ctx, client, repository.PresencePaused, to)

	return p.sleep(ctx, preSend)
}

// Settle restores the available presence after a send.
func (p *Pacer) Settle(ctx context.Context, client repository.ProtocolClient) {
	p.presence(ctx, client, repository.PresenceAvailable, "")
}

func (p *Pacer) presence(ctx context.Context, client repository.ProtocolClient, state repository.PresenceState, to string) {
	if err := client.SendPresence(ctx, state, to); err != nil {
		p.log.Debug("presence update failed",
			logger.String("state", string(state)),
			logger.Err(err))
	}
}

func randomDelay(rng *rand.Rand, minMs, maxMs int) time.Duration {
	return time.Duration(minMs+rng.Intn(maxMs-minMs+1)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
