package engine

import (
	"context"
	"testing"
	"time"

	"whatsam/internal/infrastructure/logger"
	"whatsam/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// The three delays are drawn independently; every draw must respect its
// range and the total must fall inside [1700ms, 3500ms].
func TestPacerDelayBounds(t *testing.T) {
	p := NewPacer(logger.Nop())

	rapid.Check(t, func(t *rapid.T) {
		read, typing, preSend := p.Delays()

		assert.GreaterOrEqual(t, read, time.Duration(readDelayMin)*time.Millisecond)
		assert.LessOrEqual(t, read, time.Duration(readDelayMax)*time.Millisecond)
		assert.GreaterOrEqual(t, typing, time.Duration(typingDelayMin)*time.Millisecond)
		assert.LessOrEqual(t, typing, time.Duration(typingDelayMax)*time.Millisecond)
		assert.GreaterOrEqual(t, preSend, time.Duration(preSendDelayMin)*time.Millisecond)
		assert.LessOrEqual(t, preSend, time.Duration(preSendDelayMax)*time.Millisecond)

		total := read + typing + preSend
		assert.GreaterOrEqual(t, total, 1700*time.Millisecond)
		assert.LessOrEqual(t, total, 3500*time.Millisecond)
	})
}

func TestPacerChoreographyOrder(t *testing.T) {
	p := NewPacer(logger.Nop())

	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	client := mocks.NewFakeProtocolClient("s1")
	require.NoError(t, p.Pace(context.Background(), client, "+49170"))
	p.Settle(context.Background(), client)

	require.Len(t, slept, 3)
	trail := client.PresenceTrail()
	require.Len(t, trail, 4)
	assert.Equal(t, "available", string(trail[0]))
	assert.Equal(t, "composing", string(trail[1]))
	assert.Equal(t, "paused", string(trail[2]))
	assert.Equal(t, "available", string(trail[3]))
}

func TestPacerCancelledContext(t *testing.T) {
	p := NewPacer(logger.Nop())
	client := mocks.NewFakeProtocolClient("s1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Pace(ctx, client, "+49170")
	assert.Error(t, err)
}
