package redisq

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// Client executes commands against a Pool with bounded retry: one attempt
// per endpoint configured at construction time. A connection that fails
// mid-command is purged, and because the pool's cursor advances on every
// lease, the next attempt lands on the next endpoint.
type Client struct {
	log      hclog.Logger
	pool     *Pool
	attempts int
}

func NewClient(log hclog.Logger, pool *Pool) *Client {
	return &Client{
		log:      log.Named("client"),
		pool:     pool,
		attempts: pool.Len(),
	}
}

// Do runs one command, retrying on the next endpoint after a failure. On
// success the connection goes back to the pool; on failure it is purged.
// Once the attempt budget is spent the last failure is returned.
func (c *Client) Do(cmd string, args ...interface{}) (interface{}, error) {
	if c.attempts == 0 {
		return nil, ErrNoEndpoints
	}
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		conn, err := c.pool.Lease()
		if err != nil {
			lastErr = err
			c.log.Debug("Lease failed", "attempt", attempt, "error", err)
			continue
		}
		reply, err := conn.Do(cmd, args...)
		if err != nil {
			c.pool.Purge(conn)
			lastErr = err
			c.log.Debug("Command failed, connection purged", "command", cmd, "attempt", attempt, "error", err)
			continue
		}
		c.pool.Release(conn)
		return reply, nil
	}
	return nil, fmt.Errorf("%s failed after %d attempts: %w", cmd, c.attempts, lastErr)
}
