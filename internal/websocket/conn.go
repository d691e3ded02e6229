package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferryd/ferry/internal/dispatch"
	"github.com/ferryd/ferry/internal/wire"
)

const (
	// commandReadTimeout bounds the wait for the single command message.
	commandReadTimeout = 30 * time.Second
	// frameWriteTimeout bounds each frame write.
	frameWriteTimeout = 10 * time.Second
)

// identity is the per-connection context carried in the URL query, constant
// for the connection's lifetime.
type identity struct {
	user    string
	session string
	think   bool
}

// identityFromRequest parses user/session/think from the request query.
// User is required; session defaults to "default"; think defaults to false.
func identityFromRequest(r *http.Request) (identity, error) {
	q := r.URL.Query()
	user := q.Get("user")
	if user == "" {
		return identity{}, fmt.Errorf("user query parameter is required")
	}
	session := q.Get("session")
	if session == "" {
		session = "default"
	}
	think := false
	if v := q.Get("think"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return identity{}, fmt.Errorf("think query parameter must be a boolean: %w", err)
		}
		think = parsed
	}
	return identity{user: user, session: session, think: think}, nil
}

// handleConnection services one connection: read the command, dispatch,
// stream frames, close. A reader goroutine watches for the peer going away
// and cancels the handler's context so it tears down at its next suspension
// point.
func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn, ident identity) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(commandReadTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}

	var cmd wire.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.writeErrorFrame(conn, fmt.Sprintf("invalid command message: %v", err))
		return
	}

	// The client sends nothing further; any subsequent read completes only
	// when the peer closes or fails, which cancels the in-flight handler.
	_ = conn.SetReadDeadline(time.Time{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	inv := &dispatch.Invocation{
		User:    ident.user,
		Session: ident.session,
		Think:   ident.think,
	}
	if s.chats != nil {
		inv.Chat = s.chats(ident.user, ident.session, ident.think)
	}

	emit := func(f wire.Frame) error {
		payload, err := f.Marshal()
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			cancel()
			return fmt.Errorf("write frame: %w", err)
		}
		return nil
	}

	if err := s.dispatcher.Dispatch(ctx, cmd, inv, emit); err != nil {
		log.Printf("command %s for %s/%s failed: %v", cmd.Name, ident.user, ident.session, err)
		s.writeErrorFrame(conn, err.Error())
	}

	// Clean close so clients can tell a finished stream from a dropped one.
	_ = conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// writeErrorFrame sends a best-effort error envelope.
func (s *Server) writeErrorFrame(conn *websocket.Conn, msg string) {
	payload, err := wire.Error(msg).Marshal()
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}
