package local

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ferryd/ferry/internal/stream"
)

// shellCommand builds a shell invocation that dies as a whole process group
// on cancellation. Killing only the direct child would leave grandchildren
// holding the output pipe, keeping reads blocked long past the deadline.
func (b *Backend) shellCommand(ctx context.Context, cmdline string) *exec.Cmd {
	proc := exec.CommandContext(ctx, b.cfg.Shell, "-c", cmdline)
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		return syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
	}
	// Backstop: abandon the pipes if anything survives the group kill.
	proc.WaitDelay = time.Second
	return proc
}

// VMExecute runs cmd in the user's shell and returns its combined output.
// A zero timeout uses the configured default.
func (b *Backend) VMExecute(ctx context.Context, cmd, user, session string, timeout time.Duration) (string, error) {
	if err := b.store.TouchSession(user, session); err != nil {
		return "", err
	}
	if timeout <= 0 {
		timeout = time.Duration(b.cfg.ExecTimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := b.shellCommand(ctx, cmd).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("execute %q: %w (output: %s)", cmd, err, out)
	}
	return string(out), nil
}

// VMExecuteStream runs cmd and streams its combined output. Raw mode reads
// arbitrarily sized chunks as they arrive; otherwise one chunk per line.
func (b *Backend) VMExecuteStream(ctx context.Context, cmd, user, session string, raw bool) (stream.Stream, error) {
	if err := b.store.TouchSession(user, session); err != nil {
		return nil, err
	}

	proc := b.shellCommand(ctx, cmd)
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	proc.Stderr = proc.Stdout
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", cmd, err)
	}

	st := stream.NewText(16)
	go func() {
		err := pumpOutput(ctx, stdout, st, raw)
		// The process exit status is not a stream error: its output,
		// including failure output, has already been relayed.
		_ = proc.Wait()
		st.Close(err)
	}()
	return st, nil
}

// pumpOutput forwards process output to st until EOF.
func pumpOutput(ctx context.Context, r io.Reader, st *stream.Text, raw bool) error {
	if raw {
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				if sendErr := st.Send(ctx, string(buf[:n])); sendErr != nil {
					return sendErr
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read process output: %w", err)
			}
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := st.Send(ctx, scanner.Text()+"\n"); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read process output: %w", err)
	}
	return nil
}

// terminal is one persistent interactive shell.
type terminal struct {
	proc  *exec.Cmd
	stdin io.WriteCloser
	mu    sync.Mutex
}

// terminalManager owns the persistent per-user/session shells backing
// vm_input, vm_keys, and restart_terminal.
type terminalManager struct {
	shell  string
	mu     sync.Mutex
	shells map[string]*terminal
}

func newTerminalManager(shell string) *terminalManager {
	return &terminalManager{shell: shell, shells: make(map[string]*terminal)}
}

func terminalKey(user, session string) string {
	return user + "/" + session
}

// get returns the live terminal for the key, starting one if needed.
func (m *terminalManager) get(user, session string) (*terminal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := terminalKey(user, session)
	if t, ok := m.shells[key]; ok {
		return t, nil
	}

	proc := exec.Command(m.shell, "-i")
	stdin, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("terminal stdin pipe: %w", err)
	}
	proc.Stdout = io.Discard
	proc.Stderr = io.Discard
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("start terminal shell: %w", err)
	}

	t := &terminal{proc: proc, stdin: stdin}
	m.shells[key] = t
	return t, nil
}

// restart tears down the key's terminal; the next input starts a fresh one.
func (m *terminalManager) restart(user, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := terminalKey(user, session)
	t, ok := m.shells[key]
	if !ok {
		return nil
	}
	delete(m.shells, key)
	return t.stop()
}

func (m *terminalManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, t := range m.shells {
		_ = t.stop()
		delete(m.shells, key)
	}
}

func (t *terminal) stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.stdin.Close()
	if t.proc.Process != nil {
		_ = t.proc.Process.Kill()
	}
	// The kill signal shows up as the exit status; that is the expected
	// way down, not a failure.
	_ = t.proc.Wait()
	return nil
}

func (t *terminal) write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("write to terminal: %w", err)
	}
	return nil
}

// VMSendInput writes data (newline-terminated) to the user's persistent
// shell.
func (b *Backend) VMSendInput(ctx context.Context, data, user, session string) error {
	if err := b.store.TouchSession(user, session); err != nil {
		return err
	}
	t, err := b.terminals.get(user, session)
	if err != nil {
		return err
	}
	return t.write([]byte(data + "\n"))
}

// VMSendKeys simulates typing data one keystroke at a time with the given
// inter-key delay.
func (b *Backend) VMSendKeys(ctx context.Context, data string, delay time.Duration, user, session string) error {
	if err := b.store.TouchSession(user, session); err != nil {
		return err
	}
	t, err := b.terminals.get(user, session)
	if err != nil {
		return err
	}
	for _, r := range data {
		if err := t.write([]byte(string(r))); err != nil {
			return err
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// RestartTerminal discards the user's persistent shell.
func (b *Backend) RestartTerminal(ctx context.Context, user, session string) error {
	if err := b.store.TouchSession(user, session); err != nil {
		return err
	}
	return b.terminals.restart(user, session)
}
