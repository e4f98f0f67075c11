package mc3e

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalink/internal/errs"
)

// startFakePLC runs a minimal MC3E-ASCII server that answers every batch
// read with completion code 0000 and word value 0x0007 repeated, closing
// nothing between requests (mirroring a real Q-series CPU's half-duplex
// socket). It returns the listen address and a stop function.
func startFakePLC(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					req := string(buf[:n])
					header := req[:responseHeaderLen]
					// Reply with as many 0007 words as the request's device-data
					// point-count field specifies (its last 4 hex chars).
					pointCountHex := req[len(req)-4:]
					var pc int
					for _, ch := range pointCountHex {
						pc = pc * 16
						switch {
						case ch >= '0' && ch <= '9':
							pc += int(ch - '0')
						case ch >= 'A' && ch <= 'F':
							pc += int(ch-'A') + 10
						}
					}
					resp := header + "0000"
					for i := 0; i < pc; i++ {
						resp += "0007"
					}
					c.Write([]byte(resp))
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestConnectionPool_AcquireRelease(t *testing.T) {
	addr, stop := startFakePLC(t)
	defer stop()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port := 0
	for _, ch := range portStr {
		port = port*10 + int(ch-'0')
	}

	pool := NewConnectionPool(PoolConfig{
		Host: host, Port: port, Max: 2,
		ConnectTimeout: time.Second, ReadTimeout: time.Second,
		IdleTimeout: time.Minute,
	})
	defer pool.Close()

	ctx := context.Background()
	c1, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	c2, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)

	stats := pool.Stats()
	assert.Equal(t, 2, stats.TotalCreated)
	assert.Equal(t, 0, stats.Idle)

	// Pool is at max (2); a third acquire must time out as PoolExhausted.
	_, err = pool.Acquire(ctx, 100*time.Millisecond)
	assert.ErrorIs(t, err, errs.ErrPoolExhausted)

	pool.Release(c1)
	stats = pool.Stats()
	assert.Equal(t, 1, stats.Idle)

	c3, err := pool.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.Same(t, c1, c3)

	pool.Release(c2)
	pool.Release(c3)
}

func TestPoolManager_ReadBatch(t *testing.T) {
	addr, stop := startFakePLC(t)
	defer stop()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port := 0
	for _, ch := range portStr {
		port = port*10 + int(ch-'0')
	}

	pm := NewPoolManager(time.Second)
	pm.AddPLC("P1", PoolConfig{
		Host: host, Port: port, Max: 2,
		ConnectTimeout: time.Second, ReadTimeout: time.Second,
		IdleTimeout: time.Minute,
	}, true)
	defer pm.Close()

	values, errs, err := pm.ReadBatch(context.Background(), "P1", []string{"D100", "D101"})
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, int64(7), values["D100"].Integer)
	assert.Equal(t, int64(7), values["D101"].Integer)
}

func TestPoolManager_InactivePLC(t *testing.T) {
	pm := NewPoolManager(time.Second)
	pm.AddPLC("P1", PoolConfig{Host: "127.0.0.1", Port: 1}, false)
	_, _, err := pm.ReadBatch(context.Background(), "P1", []string{"D100"})
	assert.Error(t, err)
}
