package dispatch

import (
	"context"
	"time"

	"github.com/ferryd/ferry/internal/stream"
	"github.com/ferryd/ferry/internal/wire"
)

// defaultKeyDelay is the per-keystroke delay for vm_keys when the client
// does not specify one.
const defaultKeyDelay = 50 * time.Millisecond

// handleTeamChat streams a conversational reply as raw frames. With a chat
// affinity handle present the prompt goes through the existing conversation;
// otherwise generation is a one-off scoped to user/session/think.
func (d *Dispatcher) handleTeamChat(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	prompt := optionalString(args, "prompt", "")

	var (
		st  stream.Stream
		err error
	)
	if inv.Chat != nil {
		st, err = inv.Chat.ChatStream(ctx, prompt)
	} else {
		st, err = d.backend.TeamChat(ctx, prompt, inv.User, inv.Session, inv.Think)
	}
	if err != nil {
		return err
	}

	return relay(st, emit)
}

func (d *Dispatcher) handleListDir(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	path, err := stringArg(args, "path")
	if err != nil {
		return err
	}
	listing, err := d.backend.ListDir(ctx, path, inv.User)
	if err != nil {
		return err
	}
	return emit(wire.Result(listing))
}

func (d *Dispatcher) handleReadFile(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	path, err := stringArg(args, "path")
	if err != nil {
		return err
	}
	content, err := d.backend.ReadFile(ctx, path, inv.User)
	if err != nil {
		return err
	}
	return emit(wire.Result(content))
}

func (d *Dispatcher) handleWriteFile(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	path, err := stringArg(args, "path")
	if err != nil {
		return err
	}
	content := optionalString(args, "content", "")
	result, err := d.backend.WriteFile(ctx, path, content, inv.User)
	if err != nil {
		return err
	}
	return emit(wire.Result(result))
}

func (d *Dispatcher) handleDeletePath(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	path, err := stringArg(args, "path")
	if err != nil {
		return err
	}
	result, err := d.backend.DeletePath(ctx, path, inv.User, inv.Session)
	if err != nil {
		return err
	}
	return emit(wire.Result(result))
}

func (d *Dispatcher) handleDownloadFile(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	path, err := stringArg(args, "path")
	if err != nil {
		return err
	}
	dest := optionalString(args, "dest", "")
	result, err := d.backend.DownloadFile(ctx, path, dest, inv.User, inv.Session)
	if err != nil {
		return err
	}
	return emit(wire.Result(result))
}

func (d *Dispatcher) handleVMExecute(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	cmd, err := stringArg(args, "command")
	if err != nil {
		return err
	}
	timeout := time.Duration(optionalSeconds(args, "timeout", 0) * float64(time.Second))
	result, err := d.backend.VMExecute(ctx, cmd, inv.User, inv.Session, timeout)
	if err != nil {
		return err
	}
	return emit(wire.Result(result))
}

// handleVMExecuteStream streams VM output as raw frames, unbounded. The raw
// flag selects coalesced passthrough framing; without it each backend chunk
// (one per line) becomes its own frame.
func (d *Dispatcher) handleVMExecuteStream(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	cmd, err := stringArg(args, "command")
	if err != nil {
		return err
	}
	raw := optionalBool(args, "raw", true)

	st, err := d.backend.VMExecuteStream(ctx, cmd, inv.User, inv.Session, raw)
	if err != nil {
		return err
	}

	if raw {
		for chunk := range stream.Coalesce(ctx, st.Chunks()) {
			if err := emit(wire.Raw(chunk)); err != nil {
				return err
			}
		}
		return st.Err()
	}
	return relay(st, emit)
}

func (d *Dispatcher) handleVMInput(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	data := optionalString(args, "data", "")
	if err := d.backend.VMSendInput(ctx, data, inv.User, inv.Session); err != nil {
		return err
	}
	return emit(wire.Result("ok"))
}

func (d *Dispatcher) handleVMKeys(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	data := optionalString(args, "data", "")
	delay := time.Duration(optionalSeconds(args, "delay", defaultKeyDelay.Seconds()) * float64(time.Second))
	if err := d.backend.VMSendKeys(ctx, data, delay, inv.User, inv.Session); err != nil {
		return err
	}
	return emit(wire.Result("ok"))
}

func (d *Dispatcher) handleSendNotification(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	message, err := stringArg(args, "message")
	if err != nil {
		return err
	}
	if err := d.backend.Notify(ctx, message, inv.User, inv.Session); err != nil {
		return err
	}
	return emit(wire.Result("ok"))
}

func (d *Dispatcher) handleListSessions(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	sessions, err := d.backend.ListSessions(ctx, inv.User)
	if err != nil {
		return err
	}
	return emit(wire.Result(sessions))
}

func (d *Dispatcher) handleListSessionsInfo(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	info, err := d.backend.ListSessionsInfo(ctx, inv.User)
	if err != nil {
		return err
	}
	return emit(wire.Result(info))
}

func (d *Dispatcher) handleListDocuments(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	docs, err := d.backend.ListDocuments(ctx, inv.User)
	if err != nil {
		return err
	}
	return emit(wire.Result(docs))
}

func (d *Dispatcher) handleGetMemory(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	memory, err := d.backend.GetMemory(ctx, inv.User)
	if err != nil {
		return err
	}
	return emit(wire.Result(memory))
}

func (d *Dispatcher) handleSetMemory(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	memory := optionalString(args, "memory", "")
	result, err := d.backend.SetMemory(ctx, inv.User, memory)
	if err != nil {
		return err
	}
	return emit(wire.Result(result))
}

func (d *Dispatcher) handleResetMemory(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	memory, err := d.backend.ResetMemory(ctx, inv.User)
	if err != nil {
		return err
	}
	return emit(wire.Result(memory))
}

// handleRestartTerminal restarts the VM terminal. When the invocation has a
// chat-affinity handle, the restart is also announced through it.
func (d *Dispatcher) handleRestartTerminal(ctx context.Context, args Args, inv *Invocation, emit Emit) error {
	if err := d.backend.RestartTerminal(ctx, inv.User, inv.Session); err != nil {
		return err
	}
	if inv.Chat != nil {
		if err := inv.Chat.SendNotification(ctx, "VM terminal restarted"); err != nil {
			return err
		}
	}
	return emit(wire.Result("restarted"))
}

// relay forwards every chunk of st as a raw frame, then surfaces the
// stream's terminal error.
func relay(st stream.Stream, emit Emit) error {
	for chunk := range st.Chunks() {
		if err := emit(wire.Raw(chunk)); err != nil {
			return err
		}
	}
	return st.Err()
}
