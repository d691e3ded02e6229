// Package local is the reference backend for the ferry daemon: the daemon's
// host doubles as the user's VM. Chat goes through the Anthropic API, state
// lives in SQLite, uploads and downloads live under the data directory, and
// VM commands run in the daemon's own shell.
package local

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ferryd/ferry/internal/backend"
	"github.com/ferryd/ferry/internal/config"
)

// Backend implements backend.Backend against local resources.
type Backend struct {
	cfg       *config.Config
	store     *Store
	terminals *terminalManager
	chats     *chatManager
}

// New creates the local backend, opening the state store and preparing the
// data directory.
func New(cfg *config.Config) (*Backend, error) {
	for _, dir := range []string{cfg.DataDir, cfg.DownloadDir()} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := OpenStore(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, err
	}
	b := &Backend{
		cfg:       cfg,
		store:     store,
		terminals: newTerminalManager(cfg.Shell),
	}
	b.chats = newChatManager(b)
	return b, nil
}

// Close releases the backend's resources.
func (b *Backend) Close() error {
	b.terminals.closeAll()
	return b.store.Close()
}

// Chat returns a chat-affinity handle for a user/session pair, binding the
// connection's think flag to the shared conversation. It satisfies the
// server's ChatResolver.
func (b *Backend) Chat(user, session string, think bool) backend.ChatSession {
	return &chatHandle{conv: b.chats.session(user, session), think: think}
}

// Notify records a notification for the user and logs it. Delivery to a
// live client is a relay concern; the log is the durable record.
func (b *Backend) Notify(ctx context.Context, message, user, session string) error {
	if err := b.store.AddNotification(user, session, message); err != nil {
		return err
	}
	log.Printf("notify %s/%s: %s", user, session, message)
	return nil
}

func (b *Backend) ListSessions(ctx context.Context, user string) ([]string, error) {
	return b.store.ListSessions(user)
}

func (b *Backend) ListSessionsInfo(ctx context.Context, user string) ([]backend.SessionInfo, error) {
	return b.store.ListSessionsInfo(user)
}

func (b *Backend) ListDocuments(ctx context.Context, user string) ([]backend.DocumentInfo, error) {
	return b.store.ListDocuments(user)
}

func (b *Backend) GetMemory(ctx context.Context, user string) (string, error) {
	return b.store.GetMemory(user)
}

func (b *Backend) SetMemory(ctx context.Context, user, memory string) (string, error) {
	return b.store.SetMemory(user, memory)
}

func (b *Backend) ResetMemory(ctx context.Context, user string) (string, error) {
	return b.store.ResetMemory(user)
}
