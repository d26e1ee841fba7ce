package latency_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routellm/llmrouter/internal/engine/latency"
)

func TestAverage_SeedBeforeFirstSample(t *testing.T) {
	tr := latency.New(0.2, 500)
	assert.Equal(t, 500.0, tr.Average("openai"))
}

func TestUpdate_MovesTowardsNewSample(t *testing.T) {
	tr := latency.New(0.2, 500)
	tr.Update("openai", 100)
	got := tr.Average("openai")
	assert.InDelta(t, 0.2*100+0.8*500, got, 0.0001)
	assert.Less(t, got, 500.0)
}

func TestUpdate_TracksEachProviderIndependently(t *testing.T) {
	tr := latency.New(0.2, 500)
	tr.Update("openai", 100)
	assert.Equal(t, 500.0, tr.Average("anthropic"))
}
