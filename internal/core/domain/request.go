package domain

// Request is a single chat completion request entering the router.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Stream      bool
	Priority    Priority

	// SessionID, when set, makes the router prefer the upstream a prior
	// request with the same SessionID landed on (session stickiness).
	SessionID string

	// ForceProvider, when set, pins routing to a specific provider name,
	// overriding both scoring and session stickiness.
	ForceProvider string
}

// Response is the result of a successful chat completion.
type Response struct {
	Content      string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMs    float64

	// Attempts is the 1-based count of providers tried; 1 means the first
	// ranked candidate succeeded with no fallback.
	Attempts int
}

// RouteEvent is fired once per successful routing decision, carrying every
// field of the Response plus the bookkeeping an observability sink needs.
type RouteEvent struct {
	Provider       string
	Model          string
	InputTokens    int
	OutputTokens   int
	LatencyMs      float64
	HeadroomPct    float64
	CircuitOpen    bool
	Timestamp      int64
	AttemptNumber  int
	SessionID      string
	Priority       Priority
}

// AttemptError pairs a provider name with the error it raised during a
// chat/stream attempt, preserved in order so AllProvidersFailed carries a
// full picture of what went wrong, not merely a count.
type AttemptError struct {
	Provider string
	Err      error
}

// ProviderStatus is the per-upstream snapshot returned by Router.Status.
type ProviderStatus struct {
	RPMUsed           int
	RPMLimit          int
	TPMUsed           int
	TPMLimit          int
	HeadroomPct       float64
	CircuitOpen       bool
	AvgLatencyMs      float64
	RequestsInFlight  int64
}
