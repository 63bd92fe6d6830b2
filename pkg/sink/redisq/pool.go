package redisq

import (
	"errors"
	"fmt"
	"os"

	"github.com/gomodule/redigo/redis"
	"github.com/hashicorp/go-hclog"
)

// Effectively unlimited; the cap exists so tests and cautious deployments
// can bound connection growth per endpoint.
const defaultMaxPerEndpoint = 1<<31 - 1

var (
	ErrPoolExhausted   = errors.New("connection pool exhausted")
	ErrNoEndpoints     = errors.New("pool has no endpoints")
	ErrUnknownEndpoint = errors.New("endpoint not in pool")
)

// DialFunc opens one connection to an endpoint.
type DialFunc func(ep Endpoint) (redis.Conn, error)

func defaultDial(ep Endpoint) (redis.Conn, error) {
	return redis.Dial("tcp", ep.Addr(), redis.DialDatabase(ep.DB))
}

// Conn is a pool-owned connection leased to at most one caller at a time.
// Callers hand it back with Pool.Release or discard it with Pool.Purge; they
// never close it themselves.
type Conn struct {
	raw redis.Conn
	ep  int    // index into the pool's endpoint list, -1 once detached
	gen uint64 // pool generation the connection was created under
}

// Do sends one command and reads its reply.
func (c *Conn) Do(cmd string, args ...interface{}) (interface{}, error) {
	return c.raw.Do(cmd, args...)
}

// Pool owns every connection to a set of endpoints and hands out leases
// round-robin across them. The cursor advances on every lease attempt,
// successful or not, so consecutive leases spread across endpoints no matter
// how individual attempts go.
//
// A pool serves one event dispatch at a time and is not safe for concurrent
// use. Each queue sink owns exactly one pool.
type Pool struct {
	log  hclog.Logger
	dial DialFunc
	max  int

	pid int
	gen uint64

	endpoints []Endpoint
	created   []int
	available [][]*Conn
	inUse     []map[*Conn]struct{}
	cursor    int

	getpid func() int // swapped out in fork-safety tests
}

// NewPool builds a pool over the given endpoints. A max of 0 or less selects
// the default per-endpoint connection cap, and a nil dial selects plain TCP.
func NewPool(log hclog.Logger, endpoints []Endpoint, max int, dial DialFunc) *Pool {
	if max <= 0 {
		max = defaultMaxPerEndpoint
	}
	if dial == nil {
		dial = defaultDial
	}
	p := &Pool{
		log:    log.Named("pool"),
		dial:   dial,
		max:    max,
		getpid: os.Getpid,
	}
	p.pid = p.getpid()
	for _, ep := range endpoints {
		p.AddEndpoint(ep)
	}
	return p
}

// Len returns the number of configured endpoints.
func (p *Pool) Len() int {
	return len(p.endpoints)
}

// Endpoints returns the configured endpoints in rotation order.
func (p *Pool) Endpoints() []Endpoint {
	endpoints := make([]Endpoint, len(p.endpoints))
	copy(endpoints, p.endpoints)
	return endpoints
}

// AddEndpoint appends ep to the rotation.
func (p *Pool) AddEndpoint(ep Endpoint) {
	p.checkGeneration()
	p.endpoints = append(p.endpoints, ep)
	p.created = append(p.created, 0)
	p.available = append(p.available, nil)
	p.inUse = append(p.inUse, map[*Conn]struct{}{})
}

// RemoveEndpoint drops ep from the rotation and closes all of its
// connections. Connections leased from ep at the time are detached: their
// later Release or Purge is a no-op. The cursor keeps pointing at the
// endpoint it pointed at before, wrapping to the front if it pointed at ep
// while ep was last.
func (p *Pool) RemoveEndpoint(ep Endpoint) error {
	p.checkGeneration()
	idx := -1
	for i, e := range p.endpoints {
		if e == ep {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, ep)
	}

	for _, c := range p.available[idx] {
		c.ep = -1
		_ = c.raw.Close()
	}
	for c := range p.inUse[idx] {
		c.ep = -1
		_ = c.raw.Close()
	}

	// Connections bound to endpoints past the removed one shift down a slot.
	for i := range p.endpoints {
		if i == idx {
			continue
		}
		for _, c := range p.available[i] {
			if c.ep > idx {
				c.ep--
			}
		}
		for c := range p.inUse[i] {
			if c.ep > idx {
				c.ep--
			}
		}
	}

	p.endpoints = append(p.endpoints[:idx], p.endpoints[idx+1:]...)
	p.created = append(p.created[:idx], p.created[idx+1:]...)
	p.available = append(p.available[:idx], p.available[idx+1:]...)
	p.inUse = append(p.inUse[:idx], p.inUse[idx+1:]...)

	if idx < p.cursor {
		p.cursor--
	}
	if p.cursor > len(p.endpoints)-1 {
		p.cursor = 0
	}
	return nil
}

// Lease returns a connection bound to the endpoint at the cursor, dialing a
// fresh one when none are available and the endpoint is under its cap. The
// creation count is charged before dialing, so an endpoint that keeps
// failing to connect still burns through its cap rather than being redialed
// forever.
func (p *Pool) Lease() (*Conn, error) {
	p.checkGeneration()
	if len(p.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	defer p.advance()

	idx := p.cursor
	if n := len(p.available[idx]); n > 0 {
		c := p.available[idx][n-1]
		p.available[idx] = p.available[idx][:n-1]
		p.inUse[idx][c] = struct{}{}
		return c, nil
	}
	if p.created[idx] >= p.max {
		return nil, fmt.Errorf("%w: endpoint %s is at its connection cap (%d)", ErrPoolExhausted, p.endpoints[idx], p.max)
	}
	p.created[idx]++
	raw, err := p.dial(p.endpoints[idx])
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", p.endpoints[idx], err)
	}
	c := &Conn{
		raw: raw,
		ep:  idx,
		gen: p.gen,
	}
	p.inUse[idx][c] = struct{}{}
	p.log.Debug("Created connection", "endpoint", p.endpoints[idx].String(), "created", p.created[idx])
	return c, nil
}

func (p *Pool) advance() {
	if len(p.endpoints) == 0 {
		p.cursor = 0
		return
	}
	p.cursor = (p.cursor + 1) % len(p.endpoints)
}

// Release returns a leased connection to its endpoint's available set. Stale
// connections, created before a fork or against a removed endpoint, are
// dropped silently.
func (p *Pool) Release(c *Conn) {
	p.checkGeneration()
	if c == nil || c.gen != p.gen || c.ep < 0 {
		return
	}
	if _, ok := p.inUse[c.ep][c]; !ok {
		return
	}
	delete(p.inUse[c.ep], c)
	p.available[c.ep] = append(p.available[c.ep], c)
}

// Purge removes a connection from the pool entirely and closes it. Used
// after a failed command; the connection is never handed out again, and the
// endpoint's creation count stays charged. Stale connections are ignored.
func (p *Pool) Purge(c *Conn) {
	p.checkGeneration()
	if c == nil || c.gen != p.gen || c.ep < 0 {
		return
	}
	if _, ok := p.inUse[c.ep][c]; ok {
		delete(p.inUse[c.ep], c)
	} else {
		available := p.available[c.ep]
		for i, other := range available {
			if other == c {
				p.available[c.ep] = append(available[:i], available[i+1:]...)
				break
			}
		}
	}
	_ = c.raw.Close()
}

// Close closes every pooled connection and empties the bookkeeping. The
// creation counts stay as they are; a closed pool is not meant to be reused.
func (p *Pool) Close() error {
	var firstErr error
	for i := range p.endpoints {
		for _, c := range p.available[i] {
			c.ep = -1
			if err := c.raw.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		for c := range p.inUse[i] {
			c.ep = -1
			if err := c.raw.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		p.available[i] = nil
		p.inUse[i] = map[*Conn]struct{}{}
	}
	return firstErr
}

// checkGeneration resets the pool when the process identity has changed.
// Connections inherited across a fork share descriptors with the parent, so
// they are forgotten without being closed and never handed out again.
func (p *Pool) checkGeneration() {
	pid := p.getpid()
	if pid == p.pid {
		return
	}
	p.pid = pid
	p.gen++
	p.log.Debug("Process identity changed, resetting pool", "pid", pid, "generation", p.gen)
	for i := range p.endpoints {
		p.created[i] = 0
		p.available[i] = nil
		p.inUse[i] = map[*Conn]struct{}{}
	}
	p.cursor = 0
}
