package mcp

import (
	"context"
	"testing"

	"github.com/ferryd/ferry/internal/client"
)

func newTestServer() *Server {
	return NewServer("localhost", 9999, client.Identity{User: "alice", Session: "default"})
}

func TestNewServerDefaults(t *testing.T) {
	s := newTestServer()
	if s.version != "dev" {
		t.Errorf("version = %q, expected dev", s.version)
	}
	if s.server == nil {
		t.Error("inner MCP server not created")
	}
}

func TestWithVersion(t *testing.T) {
	s := NewServer("localhost", 9999, client.Identity{User: "alice"}, WithVersion("1.2.3"))
	if s.version != "1.2.3" {
		t.Errorf("version = %q", s.version)
	}
}

// Missing required inputs must fail before any connection is attempted.
func TestToolInputValidation(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()

	if _, _, err := s.handleVMExecute(ctx, nil, VMExecuteInput{}); err == nil {
		t.Error("vm_execute accepted an empty command")
	}
	if _, _, err := s.handleReadFile(ctx, nil, ReadFileInput{}); err == nil {
		t.Error("read_file accepted an empty path")
	}
	if _, _, err := s.handleWriteFile(ctx, nil, WriteFileInput{Content: "x"}); err == nil {
		t.Error("write_file accepted an empty path")
	}
	if _, _, err := s.handleListDir(ctx, nil, ListDirInput{}); err == nil {
		t.Error("list_dir accepted an empty path")
	}
	if _, _, err := s.handleSendNotification(ctx, nil, SendNotificationInput{}); err == nil {
		t.Error("send_notification accepted an empty message")
	}
	if _, _, err := s.handleTeamChat(ctx, nil, TeamChatInput{}); err == nil {
		t.Error("team_chat accepted an empty prompt")
	}
}
