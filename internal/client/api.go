package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ferryd/ferry/internal/backend"
	"github.com/ferryd/ferry/internal/wire"
)

// result decodes an envelope into T. An error envelope becomes the error; a
// missing or null result yields T's zero value.
func result[T any](env wire.Envelope) (T, error) {
	var v T
	if err := env.Err(); err != nil {
		return v, err
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(env.Result, &v); err != nil {
		return v, fmt.Errorf("decode result: %w", err)
	}
	return v, nil
}

// VMExecute runs command in the user's VM and returns its final output.
// timeoutSeconds of 0 means the server default.
func (c *Client) VMExecute(ctx context.Context, command string, id Identity, timeoutSeconds int) (string, error) {
	args := map[string]any{"command": command}
	if timeoutSeconds > 0 {
		args["timeout"] = timeoutSeconds
	}
	env, err := c.Request(ctx, "vm_execute", args, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// VMSendInput sends additional input to the user's VM shell.
func (c *Client) VMSendInput(ctx context.Context, data string, id Identity) error {
	env, err := c.Request(ctx, "vm_input", map[string]any{"data": data}, id)
	if err != nil {
		return err
	}
	return env.Err()
}

// VMSendKeys simulates typing data into the user's VM shell with the given
// per-keystroke delay in seconds.
func (c *Client) VMSendKeys(ctx context.Context, data string, delaySeconds float64, id Identity) error {
	env, err := c.Request(ctx, "vm_keys", map[string]any{"data": data, "delay": delaySeconds}, id)
	if err != nil {
		return err
	}
	return env.Err()
}

// ListDir returns the directory listing for path.
func (c *Client) ListDir(ctx context.Context, path string, id Identity) ([]backend.DirEntry, error) {
	env, err := c.Request(ctx, "list_dir", map[string]any{"path": path}, id)
	if err != nil {
		return nil, err
	}
	return result[[]backend.DirEntry](env)
}

// ReadFile returns the contents of path.
func (c *Client) ReadFile(ctx context.Context, path string, id Identity) (string, error) {
	env, err := c.Request(ctx, "read_file", map[string]any{"path": path}, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// WriteFile writes content to path and returns the server message.
func (c *Client) WriteFile(ctx context.Context, path, content string, id Identity) (string, error) {
	env, err := c.Request(ctx, "write_file", map[string]any{"path": path, "content": content}, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// DeletePath removes path and returns the server message.
func (c *Client) DeletePath(ctx context.Context, path string, id Identity) (string, error) {
	env, err := c.Request(ctx, "delete_path", map[string]any{"path": path}, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// DownloadFile retrieves path and returns the destination path on the
// server's host. An empty dest uses the server default.
func (c *Client) DownloadFile(ctx context.Context, path, dest string, id Identity) (string, error) {
	args := map[string]any{"path": path}
	if dest != "" {
		args["dest"] = dest
	}
	env, err := c.Request(ctx, "download_file", args, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// UploadDocument uploads the file at path (a path visible to the server) and
// returns the stored location.
func (c *Client) UploadDocument(ctx context.Context, path string, id Identity) (string, error) {
	env, err := c.Request(ctx, "upload_document", map[string]any{"file_path": path}, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// UploadData uploads raw bytes under name and returns the stored location.
// The payload travels base64-encoded.
func (c *Client) UploadData(ctx context.Context, data []byte, name string, id Identity) (string, error) {
	args := map[string]any{
		"file_data": base64.StdEncoding.EncodeToString(data),
		"file_name": name,
	}
	env, err := c.Request(ctx, "upload_document", args, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// SendNotification delivers message to the user.
func (c *Client) SendNotification(ctx context.Context, message string, id Identity) error {
	env, err := c.Request(ctx, "send_notification", map[string]any{"message": message}, id)
	if err != nil {
		return err
	}
	return env.Err()
}

// ListSessions returns all session names for the user.
func (c *Client) ListSessions(ctx context.Context, id Identity) ([]string, error) {
	env, err := c.Request(ctx, "list_sessions", nil, id)
	if err != nil {
		return nil, err
	}
	return result[[]string](env)
}

// ListSessionsInfo returns session details for the user.
func (c *Client) ListSessionsInfo(ctx context.Context, id Identity) ([]backend.SessionInfo, error) {
	env, err := c.Request(ctx, "list_sessions_info", nil, id)
	if err != nil {
		return nil, err
	}
	return result[[]backend.SessionInfo](env)
}

// ListDocuments returns uploaded document info for the user.
func (c *Client) ListDocuments(ctx context.Context, id Identity) ([]backend.DocumentInfo, error) {
	env, err := c.Request(ctx, "list_documents", nil, id)
	if err != nil {
		return nil, err
	}
	return result[[]backend.DocumentInfo](env)
}

// GetMemory returns the user's persistent memory.
func (c *Client) GetMemory(ctx context.Context, id Identity) (string, error) {
	env, err := c.Request(ctx, "get_memory", nil, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// SetMemory persists memory for the user and returns it.
func (c *Client) SetMemory(ctx context.Context, memory string, id Identity) (string, error) {
	env, err := c.Request(ctx, "set_memory", map[string]any{"memory": memory}, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// ResetMemory resets the user's memory to the default and returns it.
func (c *Client) ResetMemory(ctx context.Context, id Identity) (string, error) {
	env, err := c.Request(ctx, "reset_memory", nil, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}

// RestartTerminal restarts the user's VM terminal.
func (c *Client) RestartTerminal(ctx context.Context, id Identity) (string, error) {
	env, err := c.Request(ctx, "restart_terminal", nil, id)
	if err != nil {
		return "", err
	}
	return result[string](env)
}
