package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Transport is the wire-level contract TerminalClient drives. The real
// terminal (the out-of-scope collaborator) is reached
// through whatever Transport implementation a deployment wires in;
// jsonrpcTransport is the reference implementation, speaking
// newline-delimited JSON-RPC over a stream connection (Unix domain socket
// or named pipe).
type Transport interface {
	// Dial establishes the underlying connection. Call before any Call.
	Dial(ctx context.Context) error
	// Close tears the connection down. Safe to call on an already-closed
	// transport.
	Close() error
	// Connected is a cheap liveness probe; it must not dial.
	Connected() bool
	// Call sends method/params and decodes the result into result.
	Call(ctx context.Context, method string, params, result any) error
}

// rpcRequest/rpcResponse are the newline-delimited JSON-RPC envelope.
type rpcRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// jsonrpcTransport is a minimal newline-delimited JSON-RPC client over a
// net.Conn, reconnected fresh on every Dial.
type jsonrpcTransport struct {
	network string // "unix" or "tcp"
	address string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID int64
	alive  int32
}

// NewJSONRPCTransport builds a Transport that dials network/address (e.g.
// "unix", "/run/terminal-bridge.sock").
func NewJSONRPCTransport(network, address string) Transport {
	return &jsonrpcTransport{network: network, address: address}
}

func (t *jsonrpcTransport) Dial(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		_ = t.conn.Close()
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, t.network, t.address)
	if err != nil {
		atomic.StoreInt32(&t.alive, 0)
		return fmt.Errorf("transport: dial %s %s: %w", t.network, t.address, err)
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.nextID = 0
	atomic.StoreInt32(&t.alive, 1)
	return nil
}

func (t *jsonrpcTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	atomic.StoreInt32(&t.alive, 0)
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *jsonrpcTransport) Connected() bool {
	return atomic.LoadInt32(&t.alive) == 1
}

func (t *jsonrpcTransport) Call(ctx context.Context, method string, params, result any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("transport: not dialed")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetDeadline(deadline)
	} else {
		_ = t.conn.SetDeadline(time.Time{})
	}

	t.nextID++
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("transport: encode params: %w", err)
	}

	req := rpcRequest{ID: t.nextID, Method: method, Params: rawParams}
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("transport: encode request: %w", err)
	}
	line = append(line, '\n')

	if _, err := t.conn.Write(line); err != nil {
		atomic.StoreInt32(&t.alive, 0)
		return fmt.Errorf("transport: write: %w", err)
	}

	respLine, err := t.reader.ReadBytes('\n')
	if err != nil {
		atomic.StoreInt32(&t.alive, 0)
		return fmt.Errorf("transport: read: %w", err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("transport: %s: %s", method, resp.Error)
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("transport: decode result: %w", err)
	}
	return nil
}
