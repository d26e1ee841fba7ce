// Package estimator provides a conservative pre-flight token count estimate
// used for ranking and for the router's TokenLimitExceeded short-circuit.
// Exact per-vendor tokenisation is a concern for the adapter layer;
// over-estimation is preferable to under-estimation here, since the
// estimate gates eligibility (and stands in for usage when a stream
// reports none) and never ships to an upstream.
package estimator

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/routellm/llmrouter/internal/core/domain"
)

// overheadPerMessage approximates the role/separator tokens chat-format
// wire encodings add around each message, mirroring the reference
// implementation's per-message overhead constant.
const overheadPerMessage = 4

// replyPrimerTokens accounts for the few tokens most chat APIs reserve to
// prime the assistant's reply.
const replyPrimerTokens = 2

// charsPerToken is the fallback heuristic conversion ratio used only if the
// reference tokenisation table fails to load: roughly four characters per
// token for English prose in common BPE vocabularies.
const charsPerToken = 4

// encodingName is the reference tokenisation table: the default encoding
// used by modern OpenAI-compatible models is close enough across vendors
// for a ranking-only estimate.
const encodingName = "cl100k_base"

// sharedEncoding is a module-global, lazily-initialised tokeniser. It is
// read-only once built, so sharing it across Estimator instances needs no
// further synchronisation beyond the one-time build.
var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func sharedTiktoken() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// Estimator implements ports.TokenEstimator by encoding each message with
// the shared tiktoken table, falling back to a chars-per-token heuristic if
// the table failed to load (e.g. no network access to fetch its BPE ranks).
type Estimator struct {
	enc *tiktoken.Tiktoken
}

func New() *Estimator {
	return &Estimator{enc: sharedTiktoken()}
}

// EstimateTokens returns a conservative token count for messages.
func (e *Estimator) EstimateTokens(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += overheadPerMessage
		total += e.approxTokens(m.Role)
		total += e.approxTokens(m.Content)
	}
	total += replyPrimerTokens
	return total
}

func (e *Estimator) approxTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	if e.enc != nil {
		return len(e.enc.Encode(s, nil, nil))
	}
	n := (len(s) + charsPerToken - 1) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}
