package predictor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/routellm/llmrouter/internal/engine/predictor"
)

func TestIsAtRisk_FalseWithNoHistory(t *testing.T) {
	p := predictor.New(time.Minute, 2*time.Minute, 3.0, 0.5)
	assert.False(t, p.IsAtRisk("openai", 0, 100, 0, 1000))
}

func TestIsAtRisk_FalseWhenConsumptionNotElevated(t *testing.T) {
	p := predictor.New(time.Minute, 2*time.Minute, 3.0, 0.5)
	p.Record("openai", 10)
	assert.False(t, p.IsAtRisk("openai", 1, 100, 10, 1000))
}

func TestIsAtRisk_TrueWhenBurstingTowardsLimit(t *testing.T) {
	p := predictor.New(time.Minute, 2*time.Minute, 3.0, 0.5)
	for i := 0; i < 50; i++ {
		p.Record("openai", 100)
	}
	assert.True(t, p.IsAtRisk("openai", 50, 60, 5000, 6000))
}

func TestRecord_PurgesHistoryOutsideWindow(t *testing.T) {
	p := predictor.New(10*time.Millisecond, 2*time.Minute, 3.0, 0.5)
	for i := 0; i < 50; i++ {
		p.Record("openai", 100)
	}
	time.Sleep(20 * time.Millisecond)
	assert.False(t, p.IsAtRisk("openai", 50, 60, 5000, 6000))
}
