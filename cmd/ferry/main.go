package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ferryd/ferry/internal/backend/local"
	"github.com/ferryd/ferry/internal/client"
	"github.com/ferryd/ferry/internal/config"
	"github.com/ferryd/ferry/internal/dispatch"
	"github.com/ferryd/ferry/internal/mcp"
	"github.com/ferryd/ferry/internal/websocket"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagHost    string
	flagPort    int
	flagUser    string
	flagSession string
	flagThink   bool
	flagJSON    bool
	flagQuiet   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ferry",
		Short: "Command relay between you and your VM",
		Long: `Ferry connects a client to a long-lived agent daemon over WebSocket.

The daemon runs alongside the user's VM and answers chat, shell, file,
and document commands; this CLI is both the daemon launcher and the
client.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "localhost", "Server host")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 8765, "Server port")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", defaultUser(), "User identity (or FERRY_USER env var)")
	rootCmd.PersistentFlags().StringVar(&flagSession, "session", "default", "Session name")
	rootCmd.PersistentFlags().BoolVar(&flagThink, "think", false, "Enable extended thinking for chat")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress non-essential output")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("ferry v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(execStreamCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(lsCmd())
	rootCmd.AddCommand(catCmd())
	rootCmd.AddCommand(writeCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(documentsCmd())
	rootCmd.AddCommand(memoryCmd())
	rootCmd.AddCommand(restartTerminalCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// defaultUser resolves the identity used when --user is not given.
func defaultUser() string {
	if v := os.Getenv("FERRY_USER"); v != "" {
		return v
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "default"
}

func identity() client.Identity {
	return client.Identity{User: flagUser, Session: flagSession, Think: flagThink}
}

func getClient() *client.Client {
	return client.New(flagHost, flagPort)
}

// isInteractive returns true if stdin is a terminal (not piped/redirected).
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func printJSON(v any) {
	output, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(output))
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ferry daemon in the foreground",
		Long: `Run the ferry daemon in the foreground.

The daemon serves the command protocol over WebSocket on the configured
listen address. Shut it down with SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			backend, err := local.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			server := websocket.NewServer(cfg.Listen, dispatch.New(backend))
			server.SetChatResolver(backend.Chat)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := server.Start(ctx); err != nil {
				return err
			}
			log.Printf("ferry daemon listening on %s (data: %s)", cfg.Listen, cfg.DataDir)

			<-ctx.Done()
			log.Printf("shutting down")
			return server.Stop()
		},
	}

	cmd.Flags().String("config", defaultConfigPath(), "Path to the JSON config file")
	return cmd
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".ferry", "config.json")
	}
	return ""
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP server exposing the daemon's tools",
		Long: `Run an MCP server on stdin/stdout.

Tool calls are relayed to the ferry daemon at --host/--port using the
--user and --session identity. Intended to be launched by an MCP client
such as a coding agent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := mcp.NewServer(flagHost, flagPort, identity(), mcp.WithVersion(Version))
			return s.Run(ctx)
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [MESSAGE]",
		Short: "Talk to the team chat assistant",
		Long: `Talk to the team chat assistant.

With a MESSAGE argument, sends it and prints the streamed reply. Without
arguments on a terminal, starts an interactive loop; each line is one
chat turn. Conversation context persists on the server per session.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient()
			ctx := cmd.Context()

			if len(args) == 1 {
				return chatOnce(ctx, c, args[0])
			}

			if !isInteractive() {
				// Piped input: treat all of stdin as one message.
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				prompt := strings.TrimSpace(string(data))
				if prompt == "" {
					return fmt.Errorf("empty message")
				}
				return chatOnce(ctx, c, prompt)
			}

			if !flagQuiet {
				fmt.Printf("Chatting as %s/%s (Ctrl-D to quit)\n", flagUser, flagSession)
			}
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				prompt := strings.TrimSpace(scanner.Text())
				if prompt == "" {
					continue
				}
				if err := chatOnce(ctx, c, prompt); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				}
			}
		},
	}
}

func chatOnce(ctx context.Context, c *client.Client, prompt string) error {
	chunks, err := c.TeamChatStream(ctx, prompt, identity(), nil)
	if err != nil {
		return err
	}
	for chunk := range chunks {
		fmt.Print(chunk)
	}
	fmt.Println()
	return nil
}

func execCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec COMMAND",
		Short: "Run a shell command in the VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetInt("timeout")

			out, err := getClient().VMExecute(cmd.Context(), args[0], identity(), timeout)
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(map[string]string{"output": out})
			} else {
				fmt.Print(out)
			}
			return nil
		},
	}

	cmd.Flags().Int("timeout", 0, "Max seconds to wait (0 = server default)")
	return cmd
}

func execStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec-stream COMMAND",
		Short: "Run a shell command in the VM, streaming its output",
		Long: `Run a shell command in the VM and print output as it arrives.

The stream ends when the command's output does. Use --lines for one
frame per output line instead of raw chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, _ := cmd.Flags().GetBool("lines")

			chunks, err := getClient().VMExecuteStream(cmd.Context(), args[0], identity(), !lines)
			if err != nil {
				return err
			}
			for chunk := range chunks {
				fmt.Print(chunk)
			}
			return nil
		},
	}

	cmd.Flags().Bool("lines", false, "Stream line by line instead of raw chunks")
	return cmd
}

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload PATH",
		Short: "Upload a local file as a document",
		Long: `Upload a local file as a document.

The file's bytes are sent to the daemon and stored under your document
area. Audio files are additionally transcribed when the daemon has a
transcriber configured. Use --remote when PATH refers to a file on the
daemon's host instead of a local one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _ := cmd.Flags().GetBool("remote")
			c := getClient()

			var stored string
			var err error
			if remote {
				stored, err = c.UploadDocument(cmd.Context(), args[0], identity())
			} else {
				var data []byte
				data, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read %s: %w", args[0], err)
				}
				stored, err = c.UploadData(cmd.Context(), data, filepath.Base(args[0]), identity())
			}
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(map[string]string{"stored": stored})
			} else if !flagQuiet {
				fmt.Printf("✓ Uploaded to %s\n", stored)
			}
			return nil
		},
	}

	cmd.Flags().Bool("remote", false, "PATH is on the daemon's host, not local")
	return cmd
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls PATH",
		Short: "List a directory on the VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := getClient().ListDir(cmd.Context(), args[0], identity())
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(entries)
				return nil
			}
			for _, e := range entries {
				if e.IsDir {
					fmt.Println(e.Name + "/")
				} else {
					fmt.Println(e.Name)
				}
			}
			return nil
		},
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat PATH",
		Short: "Print a file from the VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := getClient().ReadFile(cmd.Context(), args[0], identity())
			if err != nil {
				return err
			}
			fmt.Print(content)
			return nil
		},
	}
}

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write PATH [CONTENT]",
		Short: "Write a file on the VM",
		Long: `Write CONTENT to PATH on the VM, creating parent directories as
needed. When CONTENT is omitted, reads it from stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			if len(args) == 2 {
				content = args[1]
			} else {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				content = string(data)
			}

			msg, err := getClient().WriteFile(cmd.Context(), args[0], content, identity())
			if err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Printf("✓ %s\n", msg)
			}
			return nil
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm PATH",
		Short: "Delete a file or directory on the VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := getClient().DeletePath(cmd.Context(), args[0], identity())
			if err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Printf("✓ %s\n", msg)
			}
			return nil
		},
	}
}

func downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download PATH",
		Short: "Stage a VM file in the daemon's download area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, _ := cmd.Flags().GetString("dest")

			location, err := getClient().DownloadFile(cmd.Context(), args[0], dest, identity())
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(map[string]string{"location": location})
			} else if !flagQuiet {
				fmt.Printf("✓ Staged at %s\n", location)
			}
			return nil
		},
	}

	cmd.Flags().String("dest", "", "Destination path on the daemon's host")
	return cmd
}

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify MESSAGE",
		Short: "Send yourself a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := getClient().SendNotification(cmd.Context(), args[0], identity()); err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Println("✓ Notification sent")
			}
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List your sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			detailed, _ := cmd.Flags().GetBool("detailed")
			c := getClient()

			if detailed {
				info, err := c.ListSessionsInfo(cmd.Context(), identity())
				if err != nil {
					return err
				}
				if flagJSON {
					printJSON(info)
					return nil
				}
				for _, si := range info {
					fmt.Printf("%s\tcreated %s\tlast seen %s\n", si.Name, si.CreatedAt, si.LastSeenAt)
				}
				return nil
			}

			sessions, err := c.ListSessions(cmd.Context(), identity())
			if err != nil {
				return err
			}
			if flagJSON {
				printJSON(sessions)
				return nil
			}
			for _, name := range sessions {
				fmt.Println(name)
			}
			return nil
		},
	}

	cmd.Flags().Bool("detailed", false, "Include creation and last-seen times")
	return cmd
}

func documentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "documents",
		Short: "List your uploaded documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := getClient().ListDocuments(cmd.Context(), identity())
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(docs)
				return nil
			}
			for _, d := range docs {
				fmt.Printf("%s\t%d bytes\t%s\n", d.Name, d.Size, d.UploadedAt)
			}
			return nil
		},
	}
}

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage what the assistant remembers about you",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show your stored memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			memory, err := getClient().GetMemory(cmd.Context(), identity())
			if err != nil {
				return err
			}
			if flagJSON {
				printJSON(map[string]string{"memory": memory})
			} else {
				fmt.Println(memory)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set MEMORY",
		Short: "Replace your stored memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memory, err := getClient().SetMemory(cmd.Context(), args[0], identity())
			if err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Printf("✓ Memory set (%d bytes)\n", len(memory))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear your stored memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := getClient().ResetMemory(cmd.Context(), identity()); err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Println("✓ Memory cleared")
			}
			return nil
		},
	})

	return cmd
}

func restartTerminalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart-terminal",
		Short: "Restart your VM terminal session",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := getClient().RestartTerminal(cmd.Context(), identity())
			if err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Printf("✓ %s\n", msg)
			}
			return nil
		},
	}
}
