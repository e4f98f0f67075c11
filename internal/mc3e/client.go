// Package mc3e implements a single-PLC MC 3E ASCII TCP client: address
// parsing and grouping (address.go), wire framing (wire.go), and the
// client lifecycle (this file). Reconnection is deliberately not this
// package's concern — it is the connection pool's (pool.go).
package mc3e

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"scadalink/internal/errs"
	"scadalink/internal/logging"
	"scadalink/internal/model"
)

// Client owns one TCP connection to one PLC.
type Client struct {
	mu             sync.Mutex
	host           string
	port           int
	connectTimeout time.Duration
	readTimeout    time.Duration

	conn       net.Conn
	connected  bool
	errorCount int
}

// NewClient constructs a disconnected client for host:port.
func NewClient(host string, port int, connectTimeout, readTimeout time.Duration) *Client {
	return &Client{
		host:           host,
		port:           port,
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
	}
}

func (c *Client) address() string { return fmt.Sprintf("%s:%d", c.host, c.port) }

// Connect dials the PLC. A failure here is the pool's cue to discard this
// client and try another.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := c.address()
	logging.DebugConnect("MC3E", addr)

	conn, err := net.DialTimeout("tcp", addr, c.connectTimeout)
	if err != nil {
		logging.DebugConnectError("MC3E", addr, err)
		return fmt.Errorf("%w: dial %s: %v", errs.ErrConnectionFailed, addr, err)
	}
	c.conn = conn
	c.connected = true
	c.errorCount = 0
	logging.DebugConnectSuccess("MC3E", addr, "connected")
	return nil
}

// Disconnect closes the underlying socket.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked("requested")
}

func (c *Client) disconnectLocked(reason string) error {
	c.connected = false
	if c.conn == nil {
		return nil
	}
	logging.DebugDisconnect("MC3E", c.address(), reason)
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsHealthy reports whether the client believes its connection is usable.
func (c *Client) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ErrorCount returns the number of read-side errors accumulated during this
// client's current use-cycle; the pool consults this to decide whether a
// released client is still healthy.
func (c *Client) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorCount
}

// sendReceive writes req and reads one ASCII response frame under the
// configured read deadline. Any I/O error marks the client unhealthy.
func (c *Client) sendReceive(req []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return nil, fmt.Errorf("%w: not connected", errs.ErrConnectionFailed)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.readTimeout)); err != nil {
		c.connected = false
		return nil, fmt.Errorf("%w: set write deadline: %v", errs.ErrConnectionFailed, err)
	}
	logging.DebugTX("MC3E", req)
	if _, err := c.conn.Write(req); err != nil {
		c.connected = false
		c.errorCount++
		return nil, fmt.Errorf("%w: write: %v", errs.ErrConnectionFailed, err)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		c.connected = false
		return nil, fmt.Errorf("%w: set read deadline: %v", errs.ErrConnectionFailed, err)
	}

	// MC 3E ASCII responses are not length-prefixed the way TPKT is; we
	// read until the peer closes the logical frame boundary by relying on
	// a bounded read buffer sized for the largest batch this module issues
	// (one TCP read is one PLC response in this protocol's half-duplex
	// request/response exchange).
	buf := make([]byte, 8192)
	n, err := c.conn.Read(buf)
	if err != nil {
		c.errorCount++
		if err == io.EOF {
			c.connected = false
			return nil, fmt.Errorf("%w: connection closed mid-read", errs.ErrConnectionFailed)
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			c.connected = false
			return nil, fmt.Errorf("%w: read timeout", errs.ErrTimeout)
		}
		c.connected = false
		return nil, fmt.Errorf("%w: read: %v", errs.ErrRead, err)
	}
	logging.DebugRX("MC3E", buf[:n])
	return buf[:n], nil
}

// readWordRun issues one batch word read for count consecutive registers
// of family starting at headDevice.
func (c *Client) readWordRun(family string, headDevice, count int) ([]uint16, error) {
	req := encodeBatchReadRequest(family, headDevice, count)
	resp, err := c.sendReceive(req)
	if err != nil {
		return nil, err
	}
	words, err := decodeBatchReadResponse(resp, count)
	if err != nil {
		c.mu.Lock()
		c.errorCount++
		c.mu.Unlock()
		return nil, err
	}
	return words, nil
}

// readOne reads a single address: a plain word read for an unadorned or
// extChar address, or a single-register word read from which the
// requested bit is extracted for a bit-addressed tag (MC3E has a distinct
// bit-unit command; modeling it as "read the containing word, mask the
// bit" keeps this client's wire surface to one request shape while still
// never coalescing bit addresses with neighbors, per §4.1).
func (c *Client) readOne(raw string) (model.Value, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return model.Value{}, fmt.Errorf("%w: %v", errs.ErrRead, err)
	}
	words, err := c.readWordRun(addr.Family, addr.Number, 1)
	if err != nil {
		return model.Value{}, err
	}
	word := words[0]
	if !addr.IsBitAddressed() {
		return model.Int(int64(int16(word))), nil
	}
	bit, err := bitIndex(addr.BitOffset)
	if err != nil {
		return model.Value{}, fmt.Errorf("%w: %v", errs.ErrRead, err)
	}
	return model.Bool(word&(1<<uint(bit)) != 0), nil
}

// bitIndex maps a bit-offset suffix ("0".."9", "A".."F") to 0..15.
func bitIndex(offset string) (int, error) {
	if len(offset) != 1 {
		return 0, fmt.Errorf("mc3e: malformed bit offset %q", offset)
	}
	c := offset[0]
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, nil
	default:
		return 0, fmt.Errorf("mc3e: malformed bit offset %q", offset)
	}
}

// ReadSingle reads one tag address.
func (c *Client) ReadSingle(addr string) (model.Value, error) {
	return c.readOne(addr)
}

// ReadBatch reads every address in addrs, grouping into contiguous
// word-unit runs where possible. It never fails outright: per-address
// successes land in values, per-address failures land in errors, and a
// run-level failure falls back to per-address reads for that run.
func (c *Client) ReadBatch(addrs []string) (values map[string]model.Value, errors map[string]string) {
	values = make(map[string]model.Value, len(addrs))
	errors = make(map[string]string)

	for _, run := range GroupContinuousAddresses(addrs) {
		if run.Count() == 1 {
			v, err := c.readOne(run.Addresses[0])
			if err != nil {
				errors[run.Addresses[0]] = err.Error()
			} else {
				values[run.Addresses[0]] = v
			}
			continue
		}

		words, err := c.readWordRun(run.Family, run.HeadNumber, run.Count())
		if err != nil {
			for _, a := range run.Addresses {
				v, err2 := c.readOne(a)
				if err2 != nil {
					errors[a] = err2.Error()
				} else {
					values[a] = v
				}
			}
			continue
		}
		for i, a := range run.Addresses {
			values[a] = model.Int(int64(int16(words[i])))
		}
	}
	return values, errors
}
