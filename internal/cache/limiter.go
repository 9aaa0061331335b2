package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrExpire increments the window counter and starts the window on the first hit
// in a single round trip, so a crash between the two calls cannot leave a
// counter without a TTL.
var incrExpire = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

// Allow counts one hit for key and reports whether the count is within limit
// for the current fixed window.
func (c *Cache) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := incrExpire.Run(ctx, c.client, []string{"ratelimit:" + key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return count <= int64(limit), nil
}
