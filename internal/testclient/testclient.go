// Package testclient implements the named, out-of-scope "client-side
// RPC caller" interface (spec §1) in its minimal form: one connection,
// one call at a time, no pooling, no load balancing, no registry
// discovery. It exists so the host's wire format has a runnable
// counterpart for integration tests and for cmd/exampleclient.
//
// The teacher's client.Client (BX-D-mini-RPC/client/client.go) pools
// transports per discovered instance address and picks among them with
// a Balancer. Both of those concerns are named explicitly out of scope
// here, so Client keeps only what the teacher's Call does once an
// instance and transport are already in hand: format a request, write
// it, read one line back, decode it.
package testclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"servicehost/internal/rpc"
)

// Client is a single-connection JSON-RPC caller over the host's
// line-framed wire format.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	nextID atomic.Int64
}

// Dial opens one TCP connection to addr.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("testclient: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends a "<identifier>.<funcName>" request with positional params
// and decodes the result into result (which may be nil to discard it).
func (c *Client) Call(method string, params []interface{}, result interface{}) error {
	id := strconv.FormatInt(c.nextID.Add(1), 10)

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("testclient: marshal params: %w", err)
	}

	req := struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
		ID      string          `json:"id"`
	}{JSONRPC: rpc.Version, Method: method, Params: paramsJSON, ID: id}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("testclient: marshal request: %w", err)
	}

	if _, err := c.conn.Write(append(reqJSON, '\n')); err != nil {
		return fmt.Errorf("testclient: write: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("testclient: read: %w", err)
	}

	var resp rpc.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("testclient: decode response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("server error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	if result == nil {
		return nil
	}
	resultJSON, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("testclient: re-marshal result: %w", err)
	}
	return json.Unmarshal(resultJSON, result)
}
