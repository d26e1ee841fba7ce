package estimator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routellm/llmrouter/internal/core/domain"
	"github.com/routellm/llmrouter/internal/engine/estimator"
)

func TestEstimateTokens_EmptyMessages(t *testing.T) {
	e := estimator.New()
	assert.Equal(t, 2, e.EstimateTokens(nil))
}

func TestEstimateTokens_GrowsWithContentLength(t *testing.T) {
	e := estimator.New()
	short := []domain.Message{{Role: "user", Content: "hi"}}
	long := []domain.Message{{Role: "user", Content: "this is a much longer message body"}}

	assert.Greater(t, e.EstimateTokens(long), e.EstimateTokens(short))
}

func TestEstimateTokens_AccountsForEveryMessage(t *testing.T) {
	e := estimator.New()
	one := []domain.Message{{Role: "user", Content: "hello"}}
	two := []domain.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hello"},
	}

	assert.Greater(t, e.EstimateTokens(two), e.EstimateTokens(one))
}
