// Package dispatch maps command names to handlers and drives each handler's
// frame stream. This is the server half of the ferry protocol: one command
// in, a lazy sequence of frames out.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ferryd/ferry/internal/backend"
	"github.com/ferryd/ferry/internal/wire"
)

// ErrUnknownCommand is returned when the command name resolves to no
// handler. It is raised before any frame is produced, so callers can tell a
// bad command apart from a handler that yielded nothing.
var ErrUnknownCommand = errors.New("unknown command")

// Args is the untyped argument mapping of a command. Each handler coerces
// and validates its own subset of keys.
type Args map[string]any

// Invocation carries the per-command context. It is immutable for the
// lifetime of one dispatched command; user and session scope every backend
// call, think toggles reasoning in chat handlers, and Chat, when non-nil,
// redirects chat generation to an existing conversational state.
type Invocation struct {
	User    string
	Session string
	Think   bool
	Chat    backend.ChatSession
}

// Emit delivers one frame to the transport. An error means the connection is
// gone; the handler must stop at its next suspension point.
type Emit func(f wire.Frame) error

type handlerFunc func(ctx context.Context, args Args, inv *Invocation, emit Emit) error

// Dispatcher routes commands to handlers over a fixed backend. The registry
// is built once at construction and never mutated.
type Dispatcher struct {
	backend  backend.Backend
	handlers map[string]handlerFunc
}

// New creates a dispatcher over b with the full command catalogue
// registered.
func New(b backend.Backend) *Dispatcher {
	d := &Dispatcher{backend: b}
	d.handlers = map[string]handlerFunc{
		"team_chat":          d.handleTeamChat,
		"chat":               d.handleTeamChat, // alias
		"upload_document":    d.handleUploadDocument,
		"list_dir":           d.handleListDir,
		"read_file":          d.handleReadFile,
		"write_file":         d.handleWriteFile,
		"delete_path":        d.handleDeletePath,
		"download_file":      d.handleDownloadFile,
		"vm_execute":         d.handleVMExecute,
		"vm_execute_stream":  d.handleVMExecuteStream,
		"vm_input":           d.handleVMInput,
		"vm_keys":            d.handleVMKeys,
		"send_notification":  d.handleSendNotification,
		"list_sessions":      d.handleListSessions,
		"list_sessions_info": d.handleListSessionsInfo,
		"list_documents":     d.handleListDocuments,
		"get_memory":         d.handleGetMemory,
		"set_memory":         d.handleSetMemory,
		"reset_memory":       d.handleResetMemory,
		"restart_terminal":   d.handleRestartTerminal,
	}
	return d
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch resolves cmd and streams the handler's frames through emit in
// production order. Empty frames are dropped, never forwarded. An unknown
// command fails before emit is ever called.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd wire.Command, inv *Invocation, emit Emit) error {
	handler, ok := d.handlers[cmd.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}

	send := func(f wire.Frame) error {
		if f.IsZero() {
			return nil
		}
		return emit(f)
	}

	args := Args(cmd.Args)
	if args == nil {
		args = Args{}
	}
	return handler(ctx, args, inv, send)
}

// stringArg returns args[key] as a string, failing when the key is absent.
func stringArg(args Args, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v), nil
	}
	return s, nil
}

// optionalString returns args[key] as a string, or def when absent.
func optionalString(args Args, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// optionalBool returns args[key] as a bool, or def when absent or not a
// bool.
func optionalBool(args Args, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// optionalSeconds reads a numeric args[key] expressed in seconds. JSON
// numbers arrive as float64; integers are accepted too for arguments built
// in-process.
func optionalSeconds(args Args, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}
