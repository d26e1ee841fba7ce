package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routellm/llmrouter/internal/engine/state"
)

func TestNewRedis_RejectsMalformedURL(t *testing.T) {
	_, err := state.NewRedis("not-a-url::")
	assert.Error(t, err)
}

func TestNewRedis_AcceptsWellFormedURL(t *testing.T) {
	backend, err := state.NewRedis("redis://localhost:6379/0")
	assert := assert.New(t)
	assert.NoError(err)
	if backend != nil {
		assert.NoError(backend.Close())
	}
}
