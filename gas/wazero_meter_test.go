package gas_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wazervm/wazervm/gas"
)

func TestWazeroMeterGetSetRoundTrip(t *testing.T) {
	m := gas.NewWazeroMeter(5_000_000)
	assert.EqualValues(t, 5_000_000, m.GetRemainingPoints())

	m.SetRemainingPoints(100)
	assert.EqualValues(t, 100, m.GetRemainingPoints())
}

func TestWazeroMeterWithListenerAttachesToContext(t *testing.T) {
	m := gas.NewWazeroMeter(1000)
	ctx := m.WithListener(context.Background())
	assert.NotNil(t, ctx)
}
