package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
)

func TestTimingProbe(t *testing.T) {
	tests := []struct {
		name       string
		elapsed    time.Duration
		queryErr   error
		wantSolved bool
		wantErr    bool
	}{
		{"fast query", 500 * time.Millisecond, nil, false, false},
		{"exactly at threshold", 2000 * time.Millisecond, nil, false, false},
		{"just over threshold", 2001 * time.Millisecond, nil, true, false},
		{"well over threshold", 2500 * time.Millisecond, nil, true, false},
		{"slow but failed", 3 * time.Second, errors.New("query exploded"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker(t, challenge.KeyNoSQLCommand)
			clock := newFakeClock()
			probe := NewTimingProbe(tracker, challenge.KeyNoSQLCommand, clock)

			err := probe.Measure(context.Background(), func() error {
				clock.Advance(tt.elapsed)
				return tt.queryErr
			})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			tracker.Flush()
			assert.Equal(t, tt.wantSolved, tracker.Registry().IsSolved(challenge.KeyNoSQLCommand))
		})
	}
}

func TestTimingProbeStaysSolved(t *testing.T) {
	tracker := newTestTracker(t, challenge.KeyNoSQLCommand)
	clock := newFakeClock()
	probe := NewTimingProbe(tracker, challenge.KeyNoSQLCommand, clock)
	ctx := context.Background()

	require.NoError(t, probe.Measure(ctx, func() error {
		clock.Advance(3 * time.Second)
		return nil
	}))
	assert.True(t, tracker.Registry().IsSolved(challenge.KeyNoSQLCommand))

	// Fast queries afterwards must not reset anything.
	require.NoError(t, probe.Measure(ctx, func() error { return nil }))
	tracker.Flush()
	assert.True(t, tracker.Registry().IsSolved(challenge.KeyNoSQLCommand))
}

func TestClampDelay(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"negative clamps to zero", -time.Second, 0},
		{"zero passes", 0, 0},
		{"in range passes", 1500 * time.Millisecond, 1500 * time.Millisecond},
		{"at max passes", MaxArtificialDelay, MaxArtificialDelay},
		{"over max clamps", time.Hour, MaxArtificialDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampDelay(tt.in))
		})
	}
}
