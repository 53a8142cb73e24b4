package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLimited reports that a subject exhausted its window budget.
	ErrLimited = errors.New("rate limited")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Policy is the budget for one scope: at most Max hits per Window.
type Policy struct {
	Max    int
	Window time.Duration
}

// Limiter keeps fixed-window counters in Redis.
type Limiter struct {
	redis    redis.UniversalClient
	prefix   string
	policies map[string]Policy
}

// New returns a Limiter. Scopes without a policy are never limited.
func New(client redis.UniversalClient, prefix string, policies map[string]Policy) *Limiter {
	p := make(map[string]Policy, len(policies))
	for scope, policy := range policies {
		p[scope] = policy
	}
	return &Limiter{redis: client, prefix: prefix, policies: p}
}

// Check returns ErrLimited when any subject in scope is over budget. Empty
// subjects are skipped. Check never increments.
func (l *Limiter) Check(ctx context.Context, scope string, subjects ...string) error {
	policy, ok := l.policies[scope]
	if !ok {
		return nil
	}
	for _, subject := range subjects {
		if subject == "" {
			continue
		}
		count, err := l.redis.Get(ctx, l.key(scope, subject)).Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if count >= int64(policy.Max) {
			return ErrLimited
		}
	}
	return nil
}

// Hit counts one attempt for every subject and returns ErrLimited when any
// of them went over budget.
func (l *Limiter) Hit(ctx context.Context, scope string, subjects ...string) error {
	policy, ok := l.policies[scope]
	if !ok {
		return nil
	}
	limited := false
	for _, subject := range subjects {
		if subject == "" {
			continue
		}
		key := l.key(scope, subject)
		count, err := l.redis.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if count == 1 {
			if err := l.redis.Expire(ctx, key, policy.Window).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
		if count > int64(policy.Max) {
			limited = true
		}
	}
	if limited {
		return ErrLimited
	}
	return nil
}

// Reset drops the counters of the given subjects.
func (l *Limiter) Reset(ctx context.Context, scope string, subjects ...string) error {
	keys := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		if subject != "" {
			keys = append(keys, l.key(scope, subject))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Count returns the current counter for subject, zero when absent.
func (l *Limiter) Count(ctx context.Context, scope, subject string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(scope, subject)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}

func (l *Limiter) key(scope, subject string) string {
	return l.prefix + scope + ":" + strings.ToLower(subject)
}
