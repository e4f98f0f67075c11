package mc3e

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scadalink/internal/errs"
	"scadalink/internal/model"
	"scadalink/internal/retry"
)

// PoolManager composes one ConnectionPool per configured PLC and exposes
// the read operations workers actually call: readSingle/readBatch that
// acquire, delegate, and release automatically.
type PoolManager struct {
	mu        sync.RWMutex
	pools     map[string]*ConnectionPool
	active    map[string]bool
	acquireTimeout time.Duration
}

// NewPoolManager constructs an empty manager. Call AddPLC per endpoint.
func NewPoolManager(acquireTimeout time.Duration) *PoolManager {
	return &PoolManager{
		pools:          make(map[string]*ConnectionPool),
		active:         make(map[string]bool),
		acquireTimeout: acquireTimeout,
	}
}

// AddPLC registers a pool for plcCode. active=false yields InactivePLCError
// on any read against it, matching a PLC disabled in the configuration
// store without removing its pool.
func (m *PoolManager) AddPLC(plcCode string, cfg PoolConfig, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[plcCode] = NewConnectionPool(cfg)
	m.active[plcCode] = active
}

// Close shuts down every pool.
func (m *PoolManager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pools {
		p.Close()
	}
}

func (m *PoolManager) poolFor(plcCode string) (*ConnectionPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[plcCode]
	if !ok || !m.active[plcCode] {
		return nil, fmt.Errorf("%w: %s", errs.ErrInactivePLC, plcCode)
	}
	return p, nil
}

// ReadSingle acquires a client for plcCode, reads addr, and releases.
func (m *PoolManager) ReadSingle(ctx context.Context, plcCode, addr string) (model.Value, error) {
	p, err := m.poolFor(plcCode)
	if err != nil {
		return model.Value{}, err
	}
	c, err := p.Acquire(ctx, m.acquireTimeout)
	if err != nil {
		return model.Value{}, err
	}
	defer p.Release(c)
	return c.ReadSingle(addr)
}

// ReadBatch acquires a client for plcCode, reads addrs, and releases. It
// never returns an error for individual tag failures — those land in the
// returned error map, per the wire client's partial-result contract — but
// does return an error if the PLC is inactive/unknown or the pool could not
// supply a client at all.
func (m *PoolManager) ReadBatch(ctx context.Context, plcCode string, addrs []string) (map[string]model.Value, map[string]string, error) {
	p, err := m.poolFor(plcCode)
	if err != nil {
		return nil, nil, err
	}
	c, err := p.Acquire(ctx, m.acquireTimeout)
	if err != nil {
		return nil, nil, err
	}
	defer p.Release(c)
	values, errors := c.ReadBatch(addrs)
	return values, errors, nil
}

// Stats reports pool occupancy for every registered PLC (used by the
// operator console and health surface).
func (m *PoolManager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.pools))
	for code, p := range m.pools {
		out[code] = p.Stats()
	}
	return out
}

// ReconnectWithBackoff repeatedly creates and connects a fresh client for
// plcCode's pool configuration, discarding each failed attempt, using the
// pool's standard [5s, 10s, 20s] backoff sequence. It is used by a worker
// that wants to self-heal a persistently unhealthy PLC rather than simply
// retrying through the pool on the next poll.
func (m *PoolManager) ReconnectWithBackoff(ctx context.Context, plcCode string) (*Client, error) {
	p, err := m.poolFor(plcCode)
	if err != nil {
		return nil, err
	}
	var client *Client
	err = retry.Do(ctx, retry.RealSleeper{}, retry.PoolReconnectBackoff, nil, func(attempt int) error {
		c := NewClient(p.cfg.Host, p.cfg.Port, p.cfg.ConnectTimeout, p.cfg.ReadTimeout)
		if cerr := c.Connect(); cerr != nil {
			return cerr
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
