package mc3e

import (
	"context"
	"sync"
	"time"

	"scadalink/internal/errs"
	"scadalink/internal/logging"
)

// PoolConfig parameterizes one ConnectionPool.
type PoolConfig struct {
	Host              string
	Port              int
	Max               int
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	IdleTimeout       time.Duration
	MaxErrorsPerUse   int // a client that hit this many errors during its tenure is unhealthy
	ReaperInterval    time.Duration
}

type pooledClient struct {
	client   *Client
	lastUsed time.Time
}

// ConnectionPool is a per-PLC pool of up to Max connected clients. Acquire
// and Release are both safe for concurrent use from any number of workers.
type ConnectionPool struct {
	cfg PoolConfig

	mu           sync.Mutex
	idle         []*pooledClient
	totalCreated int
	waitCh       chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConnectionPool constructs a pool and starts its idle reaper.
func NewConnectionPool(cfg PoolConfig) *ConnectionPool {
	if cfg.Max <= 0 {
		cfg.Max = 5
	}
	if cfg.MaxErrorsPerUse <= 0 {
		cfg.MaxErrorsPerUse = 3
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = 60 * time.Second
	}
	p := &ConnectionPool{
		cfg:    cfg,
		waitCh: make(chan struct{}),
		stopCh: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.reapLoop()
	return p
}

// Acquire returns a healthy client, creating one if the pool has capacity,
// or waiting up to timeout for another caller to Release one. It raises
// ErrPoolExhausted on timeout.
func (p *ConnectionPool) Acquire(ctx context.Context, timeout time.Duration) (*Client, error) {
	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		for len(p.idle) > 0 {
			pc := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			if pc.client.IsHealthy() {
				p.mu.Unlock()
				return pc.client, nil
			}
			p.totalCreated--
			pc.client.Disconnect()
		}

		if p.totalCreated < p.cfg.Max {
			p.totalCreated++
			p.mu.Unlock()
			c := NewClient(p.cfg.Host, p.cfg.Port, p.cfg.ConnectTimeout, p.cfg.ReadTimeout)
			if err := c.Connect(); err != nil {
				p.mu.Lock()
				p.totalCreated--
				p.mu.Unlock()
				return nil, err
			}
			return c, nil
		}

		wait := p.waitCh
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errs.ErrPoolExhausted
		}
		timer := time.NewTimer(remaining)
		select {
		case <-wait:
			timer.Stop()
			continue
		case <-timer.C:
			return nil, errs.ErrPoolExhausted
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// Release returns a client to the pool if still healthy; otherwise it is
// closed and the creation counter is decremented. Waiters blocked in
// Acquire are woken either way (capacity may have freed up).
func (p *ConnectionPool) Release(c *Client) {
	p.mu.Lock()
	if c.IsHealthy() && c.ErrorCount() < p.cfg.MaxErrorsPerUse {
		c.mu.Lock()
		c.errorCount = 0
		c.mu.Unlock()
		p.idle = append(p.idle, &pooledClient{client: c, lastUsed: time.Now()})
	} else {
		c.Disconnect()
		p.totalCreated--
	}
	old := p.waitCh
	p.waitCh = make(chan struct{})
	p.mu.Unlock()
	close(old)
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	TotalCreated int
	Idle         int
	Max          int
}

func (p *ConnectionPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{TotalCreated: p.totalCreated, Idle: len(p.idle), Max: p.cfg.Max}
}

func (p *ConnectionPool) reapLoop() {
	defer p.wg.Done()
	t := time.NewTicker(p.cfg.ReaperInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-t.C:
			p.reapIdle()
		}
	}
}

func (p *ConnectionPool) reapIdle() {
	p.mu.Lock()
	now := time.Now()
	kept := p.idle[:0]
	var closed []*Client
	for _, pc := range p.idle {
		if now.Sub(pc.lastUsed) > p.cfg.IdleTimeout {
			closed = append(closed, pc.client)
			p.totalCreated--
		} else {
			kept = append(kept, pc)
		}
	}
	p.idle = kept
	p.mu.Unlock()

	for _, c := range closed {
		c.Disconnect()
		logging.Debug("POOL", "reaped idle client to %s", p.cfg.Host)
	}
}

// Close stops the reaper and disconnects every idle client. Clients
// currently checked out are left to their caller.
func (p *ConnectionPool) Close() {
	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, pc := range idle {
		pc.client.Disconnect()
	}
}
