// Package backend defines the contract between the command dispatcher and
// the agent backend. The dispatcher only ever calls these operations and
// relays their outputs; how chat generation, VM management, or storage work
// internally is the implementation's business (see backend/local for the
// reference implementation).
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ferryd/ferry/internal/stream"
)

// DirEntry is one directory listing entry. It marshals as a two-element
// [name, isDir] array, matching the wire shape expected by clients.
type DirEntry struct {
	Name  string
	IsDir bool
}

// MarshalJSON renders the entry as ["name", isDir].
func (e DirEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Name, e.IsDir})
}

// UnmarshalJSON parses the ["name", isDir] pair form.
func (e *DirEntry) UnmarshalJSON(data []byte) error {
	var pair []any
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("dir entry must be a [name, is_dir] pair, got %d elements", len(pair))
	}
	name, ok := pair[0].(string)
	if !ok {
		return fmt.Errorf("dir entry name must be a string")
	}
	isDir, ok := pair[1].(bool)
	if !ok {
		return fmt.Errorf("dir entry is_dir must be a bool")
	}
	e.Name = name
	e.IsDir = isDir
	return nil
}

// SessionInfo summarizes one persisted session.
type SessionInfo struct {
	Name       string `json:"name"`
	CreatedAt  string `json:"created_at"`
	LastSeenAt string `json:"last_seen_at"`
}

// DocumentInfo summarizes one uploaded document.
type DocumentInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	UploadedAt string `json:"uploaded_at"`
}

// ChatSession is the optional chat-affinity handle. When an invocation
// carries one, chat generation reuses its conversational state instead of
// creating an ephemeral one, and some side notifications go through it.
type ChatSession interface {
	ChatStream(ctx context.Context, prompt string) (stream.Stream, error)
	SendNotification(ctx context.Context, message string) error
}

// Backend is the fixed async contract the dispatcher invokes. All operations
// are scoped by user and, where it matters, session. Streaming operations
// return a stream.Stream whose chunks the dispatcher relays as raw frames.
type Backend interface {
	// TeamChat generates a conversational reply for prompt as a one-off
	// generation (no chat affinity).
	TeamChat(ctx context.Context, prompt, user, session string, think bool) (stream.Stream, error)

	// UploadDocument stores the file at path on behalf of user/session and
	// returns the stored location.
	UploadDocument(ctx context.Context, path, user, session string) (string, error)
	// UploadData stores raw bytes under name and returns the stored location.
	UploadData(ctx context.Context, data []byte, name, user, session string) (string, error)
	// UploadedPath returns the local filesystem path where an upload named
	// name for user resides. Used by the upload pipeline for MIME inference
	// and transcription.
	UploadedPath(user, name string) string
	// Transcribe transcribes the audio file at localPath, stores the
	// transcript, and returns its stored location ("" when nothing was
	// produced).
	Transcribe(ctx context.Context, localPath, user, session string) (string, error)

	Notify(ctx context.Context, message, user, session string) error

	ListDir(ctx context.Context, path, user string) ([]DirEntry, error)
	ReadFile(ctx context.Context, path, user string) (string, error)
	WriteFile(ctx context.Context, path, content, user string) (string, error)
	DeletePath(ctx context.Context, path, user, session string) (string, error)
	// DownloadFile retrieves path into dest (backend default when empty) and
	// returns the destination path.
	DownloadFile(ctx context.Context, path, dest, user, session string) (string, error)

	// VMExecute runs cmd in the user's VM and returns its final output.
	// A zero timeout means the backend default.
	VMExecute(ctx context.Context, cmd, user, session string, timeout time.Duration) (string, error)
	// VMExecuteStream runs cmd and streams its output. With raw set the
	// backend emits undifferentiated text chunks; otherwise one chunk per
	// line.
	VMExecuteStream(ctx context.Context, cmd, user, session string, raw bool) (stream.Stream, error)
	VMSendInput(ctx context.Context, data, user, session string) error
	VMSendKeys(ctx context.Context, data string, delay time.Duration, user, session string) error
	RestartTerminal(ctx context.Context, user, session string) error

	ListSessions(ctx context.Context, user string) ([]string, error)
	ListSessionsInfo(ctx context.Context, user string) ([]SessionInfo, error)
	ListDocuments(ctx context.Context, user string) ([]DocumentInfo, error)
	GetMemory(ctx context.Context, user string) (string, error)
	SetMemory(ctx context.Context, user, memory string) (string, error)
	ResetMemory(ctx context.Context, user string) (string, error)
}
