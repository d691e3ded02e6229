// Package client implements the request/stream driver for the ferry
// protocol. Every call opens its own single-use connection with its own
// timeout clock; connections are never pooled or reused.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferryd/ferry/internal/wire"
)

// ErrUnresponsive is returned when a single-result call sees no qualifying
// frame within its timeout window.
var ErrUnresponsive = errors.New("server did not respond in time")

// ErrClosedWithoutResult is returned when the connection closes cleanly
// before a qualifying frame arrives on a single-result call.
var ErrClosedWithoutResult = errors.New("server closed connection without a result")

const (
	defaultRequestTimeout = 10 * time.Second
	// defaultStreamTimeout is the chat stream's quiet period. Raise it when
	// the model takes a long time to produce a reply.
	defaultStreamTimeout = 30 * time.Second
)

// Identity is the per-connection context, carried in the URL query and
// constant for the connection's lifetime.
type Identity struct {
	User    string
	Session string
	Think   bool
}

// Client talks to a ferry server. It is safe for concurrent use; concurrent
// calls are independent connections.
type Client struct {
	host           string
	port           int
	requestTimeout time.Duration
	streamTimeout  time.Duration
	dialer         *websocket.Dialer
}

// Option configures a Client.
type Option func(*Client)

// WithRequestTimeout sets the per-call timeout for single-result requests.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithStreamTimeout sets the chat stream's quiet-period timeout.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Client) { c.streamTimeout = d }
}

// New creates a client for the server at host:port.
func New(host string, port int, opts ...Option) *Client {
	c := &Client{
		host:           host,
		port:           port,
		requestTimeout: defaultRequestTimeout,
		streamTimeout:  defaultStreamTimeout,
		dialer:         websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(id Identity) string {
	q := url.Values{}
	q.Set("user", id.User)
	q.Set("session", id.Session)
	q.Set("think", strconv.FormatBool(id.Think))
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(c.host, strconv.Itoa(c.port)),
		Path:     "/",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// dialAndSend opens a fresh connection and sends the command.
func (c *Client) dialAndSend(ctx context.Context, id Identity, cmd wire.Command) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint(id), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to server: %w", err)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send command: %w", err)
	}
	return conn, nil
}

// Request sends one command and waits for the first frame that parses as a
// JSON envelope with a result or error member. Frames that do not qualify
// are logged and skipped; they are stray output on the channel, not
// failures.
func (c *Client) Request(ctx context.Context, command string, args map[string]any, id Identity) (wire.Envelope, error) {
	conn, err := c.dialAndSend(ctx, id, wire.Command{Name: command, Args: args})
	if err != nil {
		return wire.Envelope{}, err
	}
	defer func() { _ = conn.Close() }()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.requestTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return wire.Envelope{}, fmt.Errorf("%w (command %s)", ErrUnresponsive, command)
			}
			if isConnectionClosed(err) {
				return wire.Envelope{}, fmt.Errorf("%w (command %s)", ErrClosedWithoutResult, command)
			}
			return wire.Envelope{}, fmt.Errorf("read response: %w", err)
		}

		env, ok := wire.ParseEnvelope(data)
		if !ok {
			log.Printf("ignoring non-envelope frame for %s: %.80s", command, data)
			continue
		}
		return env, nil
	}
}

// isConnectionClosed reports whether err means the peer closed the
// connection (close frame or EOF), as opposed to a timeout or transport
// fault.
func isConnectionClosed(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}

// TeamChatStream sends a chat prompt and relays every received frame until a
// quiet period elapses with no new frame, which ends the stream normally.
// Extra args are merged into the command's argument mapping.
func (c *Client) TeamChatStream(ctx context.Context, prompt string, id Identity, extra map[string]any) (<-chan string, error) {
	args := map[string]any{"prompt": prompt}
	for k, v := range extra {
		args[k] = v
	}
	conn, err := c.dialAndSend(ctx, id, wire.Command{Name: "team_chat", Args: args})
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go c.relayFrames(ctx, conn, out, c.streamTimeout)
	return out, nil
}

// VMExecuteStream runs a command in the VM and relays output frames until
// the server closes the connection, which ends the stream normally.
func (c *Client) VMExecuteStream(ctx context.Context, command string, id Identity, raw bool) (<-chan string, error) {
	args := map[string]any{"command": command, "raw": raw}
	conn, err := c.dialAndSend(ctx, id, wire.Command{Name: "vm_execute_stream", Args: args})
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go c.relayFrames(ctx, conn, out, 0)
	return out, nil
}

// relayFrames forwards received frames verbatim to out until the stream
// terminates: quiet-period timeout (when quiet > 0), connection close, or
// context cancellation. All of these close out; none is an error to the
// consumer.
func (c *Client) relayFrames(ctx context.Context, conn *websocket.Conn, out chan<- string, quiet time.Duration) {
	defer close(out)
	defer func() { _ = conn.Close() }()

	// Closing the connection on cancellation unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		if quiet > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(quiet))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case out <- string(data):
		case <-ctx.Done():
			return
		}
	}
}
