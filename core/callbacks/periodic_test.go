package callbacks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodic_FiresEveryPeriod(t *testing.T) {
	tests := []struct {
		period int
		calls  int
	}{
		{period: 1, calls: 5},
		{period: 2, calls: 7},
		{period: 3, calls: 9},
		{period: 5, calls: 4},
	}

	for _, tt := range tests {
		var fired []int
		p, err := NewPeriodic(tt.period, func(_ context.Context, epoch int) error {
			fired = append(fired, epoch)
			return nil
		})
		require.NoError(t, err)

		for i := 0; i < tt.calls; i++ {
			require.NoError(t, p.TriggerEpoch(context.Background()))
		}

		var expected []int
		for e := tt.period; e <= tt.calls; e += tt.period {
			expected = append(expected, e)
		}
		assert.Equal(t, expected, fired, "period %d", tt.period)
		assert.Len(t, fired, tt.calls/tt.period)
		assert.Equal(t, tt.calls, p.Epoch())
	}
}

func TestPeriodic_CountsEvenWhenTriggerFails(t *testing.T) {
	cause := errors.New("save failed")
	p, err := NewPeriodic(2, func(context.Context, int) error { return cause })
	require.NoError(t, err)

	assert.NoError(t, p.TriggerEpoch(context.Background()))
	assert.ErrorIs(t, p.TriggerEpoch(context.Background()), cause)
	assert.NoError(t, p.TriggerEpoch(context.Background()))
	assert.Equal(t, 3, p.Epoch())
}

func TestNewPeriodic_InvalidConfiguration(t *testing.T) {
	noop := func(context.Context, int) error { return nil }
	for _, period := range []int{0, -1} {
		_, err := NewPeriodic(period, noop)
		var cfgErr *ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	}

	_, err := NewPeriodic(1, nil)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestPeriodic_IsACallback(t *testing.T) {
	var _ Callback = (*Periodic)(nil)

	p, err := NewPeriodic(1, func(context.Context, int) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, p.BeforeTrain(context.Background(), NewTrainContext("run", nil)))
	assert.NoError(t, p.TriggerStep(context.Background(), nil, nil, 0))
	assert.Equal(t, 1, p.Period())
}
