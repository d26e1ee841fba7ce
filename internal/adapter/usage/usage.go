// Package usage extracts input/output token counts from an adapter's raw
// response body. Most vendors report usage as a flat top-level object
// (gjson reaches it in one hop, no allocation); a handful nest it under a
// vendor-specific path, which needs a configurable JSONPath expression.
package usage

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tidwall/gjson"

	"github.com/routellm/llmrouter/internal/util"
)

// Extractor extracts token usage from a raw response body, preferring a
// flat gjson lookup and falling back to a per-provider configured
// JSONPath expression for vendors that nest usage fields.
type Extractor struct {
	// paths maps provider name -> JSONPath expression for the usage
	// object, for providers whose usage isn't reachable via the flat
	// "usage.prompt_tokens"/"usage.completion_tokens" convention.
	paths *xsync.Map[string, string]
}

func New() *Extractor {
	return &Extractor{paths: xsync.NewMap[string, string]()}
}

// ConfigurePath registers a JSONPath expression for provider, validating
// it compiles before storing it so a bad config surfaces at startup
// rather than on the first request.
func (e *Extractor) ConfigurePath(provider, path string) error {
	if path == "" {
		return nil
	}
	if _, err := jsonpath.New(path); err != nil {
		return fmt.Errorf("invalid usage jsonpath for %s: %w", provider, err)
	}
	e.paths.Store(provider, path)
	return nil
}

// Extract returns the input and output token counts found in body for
// provider. Both return 0 if neither the flat lookup nor a configured
// JSONPath expression finds a usable value.
func (e *Extractor) Extract(provider string, body []byte) (inputTokens, outputTokens int) {
	if in, out, ok := extractFlat(body); ok {
		return in, out
	}
	if path, ok := e.paths.Load(provider); ok {
		if in, out, ok := extractPath(body, path); ok {
			return in, out
		}
	}
	return 0, 0
}

// extractFlat handles the common "usage": {"prompt_tokens": N,
// "completion_tokens": N} shape via gjson, without a full unmarshal.
func extractFlat(body []byte) (int, int, bool) {
	usage := gjson.GetBytes(body, "usage")
	if !usage.Exists() {
		return 0, 0, false
	}
	in := usage.Get("prompt_tokens")
	out := usage.Get("completion_tokens")
	if !in.Exists() && !out.Exists() {
		return 0, 0, false
	}
	return clampTokenCount(in.Int()), clampTokenCount(out.Int()), true
}

// clampTokenCount guards against a malformed or hostile upstream reporting
// a negative or absurdly large token count: neither should be able to
// corrupt the sliding-window sums it gets added to downstream.
func clampTokenCount(n int64) int {
	return int(util.SafeInt32(int64(util.SafeUint64(n))))
}

// extractPath handles a provider-specific nested shape via a configured
// JSONPath expression, evaluated against a single object containing both
// counts (e.g. {"prompt_tokens": N, "completion_tokens": N}).
func extractPath(body []byte, path string) (int, int, bool) {
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, 0, false
	}
	value, err := jsonpath.Get(path, parsed)
	if err != nil {
		return 0, 0, false
	}
	obj, ok := value.(map[string]interface{})
	if !ok {
		return 0, 0, false
	}
	in, inOK := toInt(obj["prompt_tokens"])
	out, outOK := toInt(obj["completion_tokens"])
	if !inOK && !outOK {
		return 0, 0, false
	}
	return in, out, true
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return clampTokenCount(int64(n)), true
	case int:
		return clampTokenCount(int64(n)), true
	default:
		return 0, false
	}
}
