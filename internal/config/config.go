package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/routellm/llmrouter/internal/core/domain"
)

const (
	DefaultWindowSeconds          = 60
	DefaultHighPriorityReservePct = 0.2
	DefaultSessionTTLSeconds      = 3600

	DefaultFailureThreshold = 5
	DefaultCooldownSeconds  = 30

	DefaultFileWriteDelay = 150 * time.Millisecond
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults and no
// providers registered; callers add at least one before routing.
func DefaultConfig() *RouterConfig {
	return &RouterConfig{
		Weights: WeightsConfig{Capacity: 0.5, Latency: 0.3, Static: 0.2},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: DefaultFailureThreshold,
			CooldownSeconds:  DefaultCooldownSeconds,
		},
		WindowSeconds:          DefaultWindowSeconds,
		HighPriorityReservePct: DefaultHighPriorityReservePct,
		SessionTTLSeconds:      DefaultSessionTTLSeconds,
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			FileOutput: true,
		},
	}
}

// Load loads configuration from file and environment variables and
// watches the file, calling onConfigChange (debounced) after each change.
// The returned RouterConfig is not updated on a change; acting on the new
// file is left entirely to onConfigChange.
func Load(onConfigChange func()) (*RouterConfig, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("LLMROUTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("LLMROUTER_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = now

			// looks like on some platforms this event fires before the
			// file write is complete
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}

	return cfg, nil
}

// Validate checks a RouterConfig's constraints, the same validation the
// registry applies per-provider but run up front so a malformed config
// file fails fast at load time rather than at first request.
func Validate(cfg *RouterConfig) error {
	if cfg.WindowSeconds <= 0 {
		return domain.NewConfigValidationError("window_seconds", cfg.WindowSeconds, "must be greater than zero")
	}
	if cfg.HighPriorityReservePct < 0 || cfg.HighPriorityReservePct > 1 {
		return domain.NewConfigValidationError("high_priority_reserve_pct", cfg.HighPriorityReservePct, "must be between 0 and 1")
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 {
		return domain.NewConfigValidationError("circuit_breaker.failure_threshold", cfg.CircuitBreaker.FailureThreshold, "must be greater than zero")
	}
	if cfg.CircuitBreaker.CooldownSeconds <= 0 {
		return domain.NewConfigValidationError("circuit_breaker.cooldown_seconds", cfg.CircuitBreaker.CooldownSeconds, "must be greater than zero")
	}
	for _, w := range []struct {
		name string
		val  float64
	}{{"weights.capacity", cfg.Weights.Capacity}, {"weights.latency", cfg.Weights.Latency}, {"weights.static", cfg.Weights.Static}} {
		if w.val < 0 || w.val > 1 {
			return domain.NewConfigValidationError(w.name, w.val, "must be between 0 and 1")
		}
	}
	for _, p := range cfg.Providers {
		if err := ValidateProviderSpec(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProviderSpec checks one ProviderSpec's fields for validity.
func ValidateProviderSpec(p ProviderSpec) error {
	if p.Name == "" {
		return domain.NewConfigValidationError("providers[].name", p.Name, "must not be empty")
	}
	if p.RPMLimit <= 0 {
		return domain.NewConfigValidationError(fmt.Sprintf("providers[%s].rpm_limit", p.Name), p.RPMLimit, "must be greater than zero")
	}
	if p.TPMLimit <= 0 {
		return domain.NewConfigValidationError(fmt.Sprintf("providers[%s].tpm_limit", p.Name), p.TPMLimit, "must be greater than zero")
	}
	if p.Weight < 0 || p.Weight > 1 {
		return domain.NewConfigValidationError(fmt.Sprintf("providers[%s].weight", p.Name), p.Weight, "must be between 0 and 1")
	}
	return nil
}
