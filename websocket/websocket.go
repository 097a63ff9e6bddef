// websocket/websocket.go

// Package websocket upgrades HTTP connections to WebSockets behind the
// corsgate origin gate. The policy decision runs before any upgrade: a
// request whose Origin the policy does not admit is answered 400 and never
// reaches the WebSocket layer.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dalemusser/corsgate/engine"
	"github.com/dalemusser/corsgate/httputil"
	"github.com/dalemusser/corsgate/policy"
)

// ErrOriginNotAllowed is returned by Accept when the request origin fails
// the policy gate. The 400 response has already been written.
var ErrOriginNotAllowed = errors.New("websocket: origin not allowed")

// ErrConnectionClosed is returned by writes on a closed connection.
var ErrConnectionClosed = errors.New("websocket: connection closed")

// ErrExpectedTextMessage is returned by ReadText for non-text frames.
var ErrExpectedTextMessage = errors.New("websocket: expected text message")

// AcceptOptions configures the gated WebSocket upgrade.
type AcceptOptions struct {
	// Policy is the resolved CORS policy whose AllowOrigin set gates the
	// upgrade. The zero policy admits nothing.
	Policy policy.Policy

	// Subprotocols lists the server's supported subprotocols. The first
	// match with a client-requested subprotocol is selected.
	Subprotocols []string
}

// Accept runs the origin gate and, on admit, upgrades the connection.
// On reject it writes a 400 JSON error and returns ErrOriginNotAllowed.
//
// The underlying library's own origin verification is disabled: the policy
// gate is the single source of truth, and it supports exact, pattern, and
// wildcard matchers rather than host patterns alone.
func Accept(w http.ResponseWriter, r *http.Request, opts AcceptOptions) (*Conn, error) {
	origin := r.Header.Get(engine.HeaderOrigin)
	if !engine.Websocket(opts.Policy, origin) {
		httputil.JSONError(w, http.StatusBadRequest, "origin_not_allowed",
			"websocket origin is not allowed")
		return nil, ErrOriginNotAllowed
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       opts.Subprotocols,
		InsecureSkipVerify: true, // origin verified by the policy gate above
	})
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// Handler creates an http.Handler that gates, upgrades, and calls the
// handler with the accepted connection.
func Handler(opts AcceptOptions, handler func(*Conn)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r, opts)
		if err != nil {
			// Accept already wrote the error response
			return
		}
		handler(conn)
	})
}

// MessageType represents the type of WebSocket message.
type MessageType int

const (
	// MessageText is a text message (UTF-8 encoded).
	MessageText MessageType = MessageType(websocket.MessageText)

	// MessageBinary is a binary message.
	MessageBinary MessageType = MessageType(websocket.MessageBinary)
)

// Conn wraps an accepted WebSocket connection.
type Conn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// Read reads a message from the connection. It blocks until a message is
// received or the context is canceled.
func (c *Conn) Read(ctx context.Context) (MessageType, []byte, error) {
	msgType, data, err := c.conn.Read(ctx)
	if err != nil {
		return 0, nil, err
	}
	return MessageType(msgType), data, nil
}

// ReadText reads a text message, failing on any other frame type.
func (c *Conn) ReadText(ctx context.Context) (string, error) {
	msgType, data, err := c.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	if msgType != websocket.MessageText {
		return "", ErrExpectedTextMessage
	}
	return string(data), nil
}

// Write writes a message to the connection. It is safe to call concurrently.
func (c *Conn) Write(ctx context.Context, msgType MessageType, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	return c.conn.Write(ctx, websocket.MessageType(msgType), data)
}

// WriteText writes a text message to the connection.
func (c *Conn) WriteText(ctx context.Context, msg string) error {
	return c.Write(ctx, MessageText, []byte(msg))
}

// Ping sends a ping to the peer and waits for a pong.
func (c *Conn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Subprotocol returns the negotiated subprotocol, or "" if none.
func (c *Conn) Subprotocol() string {
	return c.conn.Subprotocol()
}

// SetReadLimit sets the maximum message size that can be read.
func (c *Conn) SetReadLimit(limit int64) {
	c.conn.SetReadLimit(limit)
}

// Close closes the connection with a normal closure.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.conn.Close(websocket.StatusNormalClosure, "")
}
