package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"w4u-wizard-api/internal/config"
)

func TestBackoffConfig_CalculateBackoff(t *testing.T) {
	b := BackoffConfig{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, b.CalculateBackoff(0))
	assert.Equal(t, 400*time.Millisecond, b.CalculateBackoff(2))
	assert.Equal(t, time.Second, b.CalculateBackoff(10))
}

func TestFromConfig_FillsDefaults(t *testing.T) {
	b := FromConfig(config.BackoffConfig{Initial: 10 * time.Millisecond})
	assert.Equal(t, 10*time.Millisecond, b.Initial)
	assert.Equal(t, time.Minute, b.Max)
	assert.Equal(t, 2.0, b.Multiplier)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	b := BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	calls := 0
	err := Do(context.Background(), 3, b, func(int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	b := BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	calls := 0
	sentinel := errors.New("bad request")
	err := Do(context.Background(), 5, b, func(int) error {
		calls++
		return &Permanent{Err: sentinel}
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	b := BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	calls := 0
	err := Do(context.Background(), 2, b, func(int) error {
		calls++
		return errors.New("still down")
	})
	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}
