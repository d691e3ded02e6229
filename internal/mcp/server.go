// Package mcp exposes the ferry daemon's operations as MCP tools so that
// coding agents can run VM commands, touch files, and reach the team chat
// through their tool-calling interface.
package mcp

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ferryd/ferry/internal/client"
)

// Server is the ferry MCP server. It speaks MCP on stdin/stdout and relays
// each tool call to the ferry daemon over its own connection.
type Server struct {
	client   *client.Client
	identity client.Identity
	version  string
	server   *gomcp.Server
}

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates an MCP server that relays tool calls to the ferry daemon
// at host:port on behalf of the given identity.
func NewServer(host string, port int, id client.Identity, opts ...Option) *Server {
	s := &Server{
		client:   client.New(host, port),
		identity: id,
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "ferry",
			Version: s.version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdin/stdout. It blocks until the client
// disconnects or the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// registerTools registers all MCP tool handlers with the server.
func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "vm_execute",
		Description: "Run a shell command in the user's VM and return its output",
	}, s.handleVMExecute)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "read_file",
		Description: "Read a file from the VM",
	}, s.handleReadFile)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "write_file",
		Description: "Write content to a file on the VM, creating parent directories as needed",
	}, s.handleWriteFile)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_dir",
		Description: "List the entries of a directory on the VM",
	}, s.handleListDir)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_notification",
		Description: "Deliver a notification message to the user",
	}, s.handleSendNotification)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "team_chat",
		Description: "Send a message to the team chat assistant and return its reply",
	}, s.handleTeamChat)
}
