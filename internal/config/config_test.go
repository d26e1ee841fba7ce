package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routellm/llmrouter/internal/config"
)

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.NoError(t, config.Validate(cfg))
}

func TestDefaultConfig_HasNoProvidersRegistered(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Empty(t, cfg.Providers)
}

func TestValidate_RejectsNonPositiveWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WindowSeconds = 0
	assert.Error(t, config.Validate(cfg))
}

func TestValidate_RejectsOutOfRangeReservePct(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HighPriorityReservePct = 1.5
	assert.Error(t, config.Validate(cfg))
}

func TestValidate_RejectsNonPositiveFailureThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CircuitBreaker.FailureThreshold = 0
	assert.Error(t, config.Validate(cfg))
}

func TestValidate_RejectsOutOfRangeWeight(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Weights.Capacity = 2
	assert.Error(t, config.Validate(cfg))
}

func TestValidate_ChecksEveryRegisteredProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers = []config.ProviderSpec{
		{Name: "openai", RPMLimit: 500, TPMLimit: 100000, Weight: 0.9, Enabled: true},
		{Name: "broken", RPMLimit: 0, TPMLimit: 100000, Weight: 0.5, Enabled: true},
	}
	assert.Error(t, config.Validate(cfg))
}

func TestValidateProviderSpec_RejectsEmptyName(t *testing.T) {
	err := config.ValidateProviderSpec(config.ProviderSpec{RPMLimit: 1, TPMLimit: 1, Weight: 0.5})
	assert.Error(t, err)
}

func TestValidateProviderSpec_AcceptsWellFormedSpec(t *testing.T) {
	err := config.ValidateProviderSpec(config.ProviderSpec{
		Name: "anthropic", RPMLimit: 100, TPMLimit: 50000, Weight: 1.0, Enabled: true,
	})
	assert.NoError(t, err)
}
