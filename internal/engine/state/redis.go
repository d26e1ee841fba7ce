package state

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routellm/llmrouter/internal/util"
)

const keyPrefix = "llm_router"

func rpmKey(provider string) string      { return fmt.Sprintf("%s:rpm:%s", keyPrefix, provider) }
func tpmKey(provider string) string      { return fmt.Sprintf("%s:tpm:%s", keyPrefix, provider) }
func sessionKey(sessionID string) string { return fmt.Sprintf("%s:session:%s", keyPrefix, sessionID) }
func circuitKey(provider string) string  { return fmt.Sprintf("%s:circuit:%s", keyPrefix, provider) }

// Redis is the shared-storage StateBackend variant: every router instance
// pointed at the same Redis database sees the same usage and session
// pins, via sorted sets keyed by request timestamp and plain string keys
// with TTL for session affinity.
type Redis struct {
	client *redis.Client
}

// NewRedis opens a client against redisURL (e.g. "redis://host:6379/0").
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// RecordRequest pipelines a ZADD + ZREMRANGEBYSCORE + EXPIRE for both the
// rpm and tpm sorted sets, so a single request produces one round trip.
func (r *Redis) RecordRequest(ctx context.Context, provider string, tokens int, window time.Duration, now time.Time) error {
	score := float64(now.UnixNano()) / 1e9
	cutoff := score - window.Seconds()

	rKey := rpmKey(provider)
	tKey := tpmKey(provider)
	tpmMember := fmt.Sprintf("%v:%d", score, tokens)

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, rKey, redis.Z{Score: score, Member: strconv.FormatFloat(score, 'f', -1, 64)})
		pipe.ZRemRangeByScore(ctx, rKey, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64))
		pipe.Expire(ctx, rKey, window*2)

		pipe.ZAdd(ctx, tKey, redis.Z{Score: score, Member: tpmMember})
		pipe.ZRemRangeByScore(ctx, tKey, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64))
		pipe.Expire(ctx, tKey, window*2)
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording request for %s: %w", provider, err)
	}
	return nil
}

// GetUsage pipelines a pair of ZRANGEBYSCORE reads over the trailing
// window and sums the token counts encoded in each tpm member.
func (r *Redis) GetUsage(ctx context.Context, provider string, window time.Duration, now time.Time) (int, int, error) {
	nowScore := float64(now.UnixNano()) / 1e9
	cutoff := nowScore - window.Seconds()

	rKey := rpmKey(provider)
	tKey := tpmKey(provider)
	byScore := &redis.ZRangeBy{Min: strconv.FormatFloat(cutoff, 'f', -1, 64), Max: "+inf"}

	var rpmCmd, tpmCmd *redis.StringSliceCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		rpmCmd = pipe.ZRangeByScore(ctx, rKey, byScore)
		tpmCmd = pipe.ZRangeByScore(ctx, tKey, byScore)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("reading usage for %s: %w", provider, err)
	}

	rpmMembers, err := rpmCmd.Result()
	if err != nil {
		return 0, 0, fmt.Errorf("reading rpm window for %s: %w", provider, err)
	}
	tpmMembers, err := tpmCmd.Result()
	if err != nil {
		return 0, 0, fmt.Errorf("reading tpm window for %s: %w", provider, err)
	}

	tokens := 0
	for _, member := range tpmMembers {
		idx := strings.LastIndex(member, ":")
		if idx < 0 {
			continue
		}
		n, err := strconv.ParseInt(member[idx+1:], 10, 64)
		if err != nil {
			continue // malformed member; skip rather than fail the whole read
		}
		// Clamp before folding into the running sum: a peer instance
		// writing a corrupt or hostile member must not poison this
		// process's view of the shared window.
		tokens += int(util.SafeInt32(n))
	}

	return len(rpmMembers), tokens, nil
}

// GetSessionProvider reads the session's provider pin, if any.
func (r *Redis) GetSessionProvider(ctx context.Context, sessionID string) (string, bool, error) {
	val, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading session pin for %s: %w", sessionID, err)
	}
	return val, true, nil
}

// SetSessionProvider pins sessionID to provider for ttl.
func (r *Redis) SetSessionProvider(ctx context.Context, sessionID, provider string, ttl time.Duration) error {
	if err := r.client.Set(ctx, sessionKey(sessionID), provider, ttl).Err(); err != nil {
		return fmt.Errorf("pinning session %s: %w", sessionID, err)
	}
	return nil
}

// MarkOpen writes the llm_router:circuit:{name} marker key so peer router
// instances sharing this Redis database see provider as OPEN without
// polling each other.
func (r *Redis) MarkOpen(ctx context.Context, provider string, ttl time.Duration) error {
	if err := r.client.Set(ctx, circuitKey(provider), "1", ttl).Err(); err != nil {
		return fmt.Errorf("marking circuit open for %s: %w", provider, err)
	}
	return nil
}

// IsMarkedOpen reports whether a live circuit marker exists for provider.
func (r *Redis) IsMarkedOpen(ctx context.Context, provider string) (bool, error) {
	n, err := r.client.Exists(ctx, circuitKey(provider)).Result()
	if err != nil {
		return false, fmt.Errorf("reading circuit marker for %s: %w", provider, err)
	}
	return n > 0, nil
}

// Close releases the underlying Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
