package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routellm/llmrouter/internal/adapter/registry"
	"github.com/routellm/llmrouter/internal/core/domain"
	"github.com/routellm/llmrouter/internal/core/ports"
)

func TestRegister_RejectsInvalidLimits(t *testing.T) {
	r := registry.New()
	err := r.Register(domain.Provider{Name: "openai", RPMLimit: 0, TPMLimit: 100, Weight: 0.5, Enabled: true, Adapter: &ports.MockAdapter{}})
	require.Error(t, err)
	var cfgErr *domain.ConfigValidationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRegister_RejectsOutOfRangeWeight(t *testing.T) {
	r := registry.New()
	err := r.Register(domain.Provider{Name: "openai", RPMLimit: 10, TPMLimit: 100, Weight: 1.5, Enabled: true, Adapter: &ports.MockAdapter{}})
	require.Error(t, err)
}

func TestSnapshot_OnlyIncludesEnabled(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(domain.Provider{Name: "a", RPMLimit: 10, TPMLimit: 100, Weight: 0.5, Enabled: true, Adapter: &ports.MockAdapter{}}))
	require.NoError(t, r.Register(domain.Provider{Name: "b", RPMLimit: 10, TPMLimit: 100, Weight: 0.5, Enabled: false, Adapter: &ports.MockAdapter{}}))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].Name)
}

func TestSnapshot_PreservesRegistrationOrder(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(domain.Provider{Name: "b", RPMLimit: 10, TPMLimit: 100, Weight: 0.5, Enabled: true, Adapter: &ports.MockAdapter{}}))
	require.NoError(t, r.Register(domain.Provider{Name: "a", RPMLimit: 10, TPMLimit: 100, Weight: 0.5, Enabled: true, Adapter: &ports.MockAdapter{}}))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Name)
	assert.Equal(t, "a", snap[1].Name)
}

func TestRegisterBYOC_SetsNameAndAdapter(t *testing.T) {
	r := registry.New()
	adapter := &ports.MockAdapter{}
	require.NoError(t, r.RegisterBYOC("custom", adapter, domain.Provider{RPMLimit: 10, TPMLimit: 100, Weight: 0.5, Enabled: true}))

	p, ok := r.Get("custom")
	require.True(t, ok)
	assert.Equal(t, "custom", p.Name)
	assert.Same(t, adapter, p.Adapter)
}
