package mcp

import (
	"context"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// handleVMExecute runs one shell command in the VM.
func (s *Server) handleVMExecute(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input VMExecuteInput,
) (*gomcp.CallToolResult, VMExecuteOutput, error) {
	if input.Command == "" {
		return nil, VMExecuteOutput{}, fmt.Errorf("'command' is required")
	}

	out, err := s.client.VMExecute(ctx, input.Command, s.identity, input.Timeout)
	if err != nil {
		return nil, VMExecuteOutput{}, fmt.Errorf("execute command: %w", err)
	}
	return nil, VMExecuteOutput{Output: out}, nil
}

// handleReadFile reads one file from the VM.
func (s *Server) handleReadFile(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ReadFileInput,
) (*gomcp.CallToolResult, ReadFileOutput, error) {
	if input.Path == "" {
		return nil, ReadFileOutput{}, fmt.Errorf("'path' is required")
	}

	content, err := s.client.ReadFile(ctx, input.Path, s.identity)
	if err != nil {
		return nil, ReadFileOutput{}, fmt.Errorf("read file: %w", err)
	}
	return nil, ReadFileOutput{Content: content}, nil
}

// handleWriteFile writes content to a file on the VM.
func (s *Server) handleWriteFile(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input WriteFileInput,
) (*gomcp.CallToolResult, WriteFileOutput, error) {
	if input.Path == "" {
		return nil, WriteFileOutput{}, fmt.Errorf("'path' is required")
	}

	msg, err := s.client.WriteFile(ctx, input.Path, input.Content, s.identity)
	if err != nil {
		return nil, WriteFileOutput{}, fmt.Errorf("write file: %w", err)
	}
	return nil, WriteFileOutput{Message: msg}, nil
}

// handleListDir lists one directory on the VM.
func (s *Server) handleListDir(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input ListDirInput,
) (*gomcp.CallToolResult, ListDirOutput, error) {
	if input.Path == "" {
		return nil, ListDirOutput{}, fmt.Errorf("'path' is required")
	}

	entries, err := s.client.ListDir(ctx, input.Path, s.identity)
	if err != nil {
		return nil, ListDirOutput{}, fmt.Errorf("list directory: %w", err)
	}

	listing := make([]DirEntryInfo, 0, len(entries))
	for _, e := range entries {
		listing = append(listing, DirEntryInfo{Name: e.Name, IsDir: e.IsDir})
	}
	return nil, ListDirOutput{Entries: listing, Count: len(listing)}, nil
}

// handleSendNotification delivers one notification to the user.
func (s *Server) handleSendNotification(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input SendNotificationInput,
) (*gomcp.CallToolResult, SendNotificationOutput, error) {
	if input.Message == "" {
		return nil, SendNotificationOutput{}, fmt.Errorf("'message' is required")
	}

	if err := s.client.SendNotification(ctx, input.Message, s.identity); err != nil {
		return nil, SendNotificationOutput{}, fmt.Errorf("send notification: %w", err)
	}
	return nil, SendNotificationOutput{Status: "delivered"}, nil
}

// handleTeamChat sends one prompt through the team chat and assembles the
// streamed reply into a single string.
func (s *Server) handleTeamChat(
	ctx context.Context,
	req *gomcp.CallToolRequest,
	input TeamChatInput,
) (*gomcp.CallToolResult, TeamChatOutput, error) {
	if input.Prompt == "" {
		return nil, TeamChatOutput{}, fmt.Errorf("'prompt' is required")
	}

	id := s.identity
	id.Think = input.Think

	chunks, err := s.client.TeamChatStream(ctx, input.Prompt, id, nil)
	if err != nil {
		return nil, TeamChatOutput{}, fmt.Errorf("team chat: %w", err)
	}

	var reply strings.Builder
	for chunk := range chunks {
		reply.WriteString(chunk)
	}
	return nil, TeamChatOutput{Reply: reply.String()}, nil
}
