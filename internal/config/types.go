package config

// RouterConfig is the declarative record a Router is built from: the
// providers to register at start plus every routing tunable.
type RouterConfig struct {
	Providers             []ProviderSpec       `yaml:"providers"`
	Weights               WeightsConfig        `yaml:"weights"`
	CircuitBreaker        CircuitBreakerConfig `yaml:"circuit_breaker"`
	WindowSeconds         int                  `yaml:"window_seconds"`
	HighPriorityReservePct float64             `yaml:"high_priority_reserve_pct"`
	SharedStateURL        string               `yaml:"shared_state_url"`
	SessionTTLSeconds     int                  `yaml:"session_ttl_seconds"`
	Logging               LoggingConfig        `yaml:"logging"`
}

// ProviderSpec describes one upstream to register at start.
type ProviderSpec struct {
	Name     string  `yaml:"name"`
	Model    string  `yaml:"model"`
	APIKey   string  `yaml:"api_key"`
	RPMLimit int     `yaml:"rpm_limit"`
	TPMLimit int     `yaml:"tpm_limit"`
	Weight   float64 `yaml:"weight"`
	Enabled  bool    `yaml:"enabled"`
}

// WeightsConfig overrides the normal-priority scoring coefficients. Each
// must be in [0,1]; the scorer uses them as given, without normalising
// them, and keeps its fixed high- and low-priority weights.
type WeightsConfig struct {
	Capacity float64 `yaml:"capacity"`
	Latency  float64 `yaml:"latency"`
	Static   float64 `yaml:"static"`
}

// CircuitBreakerConfig tunes the breaker shared by every provider.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownSeconds  int `yaml:"cooldown_seconds"`
}

// LoggingConfig holds logging configuration: level/theme/rotation knobs,
// no provider-specific fields.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Theme      string `yaml:"theme"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	FileOutput bool   `yaml:"file_output"`
	PrettyLogs bool   `yaml:"pretty_logs"`
}
