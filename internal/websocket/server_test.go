package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/ferryd/ferry/internal/backend"
	"github.com/ferryd/ferry/internal/client"
	"github.com/ferryd/ferry/internal/dispatch"
	"github.com/ferryd/ferry/internal/stream"
	ws "github.com/ferryd/ferry/internal/websocket"
)

// testBackend is a minimal canned backend for server round-trips.
type testBackend struct {
	chatChunks []string
	vmOutput   string
	transcript string
	lastUser   string
	lastThink  bool
}

func (b *testBackend) TeamChat(ctx context.Context, prompt, user, session string, think bool) (stream.Stream, error) {
	b.lastUser = user
	b.lastThink = think
	return stream.FromSlice(b.chatChunks), nil
}

func (b *testBackend) UploadDocument(ctx context.Context, path, user, session string) (string, error) {
	return "stored:" + path, nil
}

func (b *testBackend) UploadData(ctx context.Context, data []byte, name, user, session string) (string, error) {
	return "stored:" + name, nil
}

func (b *testBackend) UploadedPath(user, name string) string { return "/uploads/" + user + "/" + name }

func (b *testBackend) Transcribe(ctx context.Context, localPath, user, session string) (string, error) {
	return b.transcript, nil
}

func (b *testBackend) Notify(ctx context.Context, message, user, session string) error { return nil }

func (b *testBackend) ListDir(ctx context.Context, path, user string) ([]backend.DirEntry, error) {
	return []backend.DirEntry{{Name: "a.txt", IsDir: false}, {Name: "sub", IsDir: true}}, nil
}

func (b *testBackend) ReadFile(ctx context.Context, path, user string) (string, error) {
	return "content", nil
}

func (b *testBackend) WriteFile(ctx context.Context, path, content, user string) (string, error) {
	return "ok", nil
}

func (b *testBackend) DeletePath(ctx context.Context, path, user, session string) (string, error) {
	return "ok", nil
}

func (b *testBackend) DownloadFile(ctx context.Context, path, dest, user, session string) (string, error) {
	return "/dl/" + path, nil
}

func (b *testBackend) VMExecute(ctx context.Context, cmd, user, session string, timeout time.Duration) (string, error) {
	return b.vmOutput, nil
}

func (b *testBackend) VMExecuteStream(ctx context.Context, cmd, user, session string, raw bool) (stream.Stream, error) {
	return stream.FromSlice([]string{"out1\n", "out2\n"}), nil
}

func (b *testBackend) VMSendInput(ctx context.Context, data, user, session string) error { return nil }

func (b *testBackend) VMSendKeys(ctx context.Context, data string, delay time.Duration, user, session string) error {
	return nil
}

func (b *testBackend) RestartTerminal(ctx context.Context, user, session string) error { return nil }

func (b *testBackend) ListSessions(ctx context.Context, user string) ([]string, error) {
	return []string{"default"}, nil
}

func (b *testBackend) ListSessionsInfo(ctx context.Context, user string) ([]backend.SessionInfo, error) {
	return nil, nil
}

func (b *testBackend) ListDocuments(ctx context.Context, user string) ([]backend.DocumentInfo, error) {
	return nil, nil
}

func (b *testBackend) GetMemory(ctx context.Context, user string) (string, error) { return "", nil }

func (b *testBackend) SetMemory(ctx context.Context, user, memory string) (string, error) {
	return memory, nil
}

func (b *testBackend) ResetMemory(ctx context.Context, user string) (string, error) { return "", nil }

func startServer(t *testing.T, addr string, b backend.Backend) *ws.Server {
	t.Helper()
	server := ws.NewServer(addr, dispatch.New(b))
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	time.Sleep(100 * time.Millisecond)
	return server
}

func TestServerLifecycle(t *testing.T) {
	server := ws.NewServer("localhost:9981", dispatch.New(&testBackend{}))
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if server.Addr() != "localhost:9981" {
		t.Errorf("addr = %s", server.Addr())
	}
	if server.Port() != 9981 {
		t.Errorf("port = %d", server.Port())
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestSingleResultRoundTrip(t *testing.T) {
	b := &testBackend{vmOutput: "hi\n"}
	startServer(t, "localhost:9982", b)

	c := client.New("localhost", 9982)
	id := client.Identity{User: "alice", Session: "default"}

	out, err := c.VMExecute(context.Background(), "echo hi", id, 5)
	if err != nil {
		t.Fatalf("vm_execute: %v", err)
	}
	if out != "hi\n" {
		t.Errorf("output = %q", out)
	}
}

func TestUnknownCommandErrorEnvelope(t *testing.T) {
	startServer(t, "localhost:9983", &testBackend{})

	c := client.New("localhost", 9983)
	id := client.Identity{User: "alice", Session: "default"}

	env, err := c.Request(context.Background(), "bogus_command", nil, id)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if env.Err() == nil || !strings.Contains(env.Err().Error(), "unknown command") {
		t.Errorf("expected unknown command error, got %v", env.Err())
	}
}

func TestMissingUserRejectedAtHandshake(t *testing.T) {
	startServer(t, "localhost:9984", &testBackend{})

	_, _, err := gws.DefaultDialer.Dial("ws://localhost:9984/?session=default", nil)
	if err == nil {
		t.Fatal("expected handshake failure without user parameter")
	}
}

func TestChatStreamRelaysRawFrames(t *testing.T) {
	b := &testBackend{chatChunks: []string{"Hel", "lo ", "world"}}
	startServer(t, "localhost:9985", b)

	c := client.New("localhost", 9985, client.WithStreamTimeout(2*time.Second))
	id := client.Identity{User: "bob", Session: "s1", Think: true}

	frames, err := c.TeamChatStream(context.Background(), "greet me", id, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var got []string
	for f := range frames {
		got = append(got, f)
	}
	if strings.Join(got, "") != "Hello world" {
		t.Errorf("frames = %v", got)
	}
	if b.lastUser != "bob" || !b.lastThink {
		t.Errorf("identity not propagated: user=%q think=%v", b.lastUser, b.lastThink)
	}
}

func TestUploadAudioEmitsTwoEnvelopes(t *testing.T) {
	b := &testBackend{transcript: "stored:memo.txt"}
	startServer(t, "localhost:9986", b)

	conn, _, err := gws.DefaultDialer.Dial("ws://localhost:9986/?user=alice&session=s1&think=false", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	cmd := map[string]any{"command": "upload_document", "args": map[string]any{"file_path": "/tmp/memo.mp3"}}
	payload, _ := json.Marshal(cmd)
	if err := conn.WriteMessage(gws.TextMessage, payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	var frames []string
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			break // server closed after the command finished
		}
		frames = append(frames, string(data))
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 envelope frames, got %d: %v", len(frames), frames)
	}
	if frames[0] != `{"result":"stored:/tmp/memo.mp3"}` {
		t.Errorf("first frame = %s", frames[0])
	}
	if frames[1] != `{"result":"stored:memo.txt"}` {
		t.Errorf("second frame = %s", frames[1])
	}
}

// recordingChatSession is a canned affinity handle that records prompts.
type recordingChatSession struct {
	chunks  []string
	prompts []string
}

func (s *recordingChatSession) ChatStream(ctx context.Context, prompt string) (stream.Stream, error) {
	s.prompts = append(s.prompts, prompt)
	return stream.FromSlice(s.chunks), nil
}

func (s *recordingChatSession) SendNotification(ctx context.Context, message string) error {
	return nil
}

func TestChatResolverReceivesConnectionThink(t *testing.T) {
	b := &testBackend{}
	handle := &recordingChatSession{chunks: []string{"ok"}}
	resolved := struct {
		user  string
		think bool
	}{think: true}

	server := ws.NewServer("localhost:9988", dispatch.New(b))
	server.SetChatResolver(func(user, session string, think bool) backend.ChatSession {
		resolved.user, resolved.think = user, think
		return handle
	})
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	time.Sleep(100 * time.Millisecond)

	c := client.New("localhost", 9988, client.WithStreamTimeout(2*time.Second))
	id := client.Identity{User: "carol", Session: "s1", Think: false}

	frames, err := c.TeamChatStream(context.Background(), "hello", id, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	for range frames {
	}

	if len(handle.prompts) != 1 || handle.prompts[0] != "hello" {
		t.Fatalf("affinity handle prompts = %v", handle.prompts)
	}
	if resolved.user != "carol" {
		t.Errorf("resolved user = %q", resolved.user)
	}
	if resolved.think {
		t.Error("resolver saw think=true for a think=false connection")
	}
	if b.lastUser != "" {
		t.Error("chat bypassed the affinity handle")
	}
}

func TestHealthEndpoint(t *testing.T) {
	startServer(t, "localhost:9989", &testBackend{})

	resp, err := http.Get("http://localhost:9989/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status        string `json:"status"`
		UptimeSeconds int64  `json:"uptime_seconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	if body.UptimeSeconds < 0 {
		t.Errorf("uptime = %d", body.UptimeSeconds)
	}
}

func TestVMStreamEndsOnServerClose(t *testing.T) {
	startServer(t, "localhost:9987", &testBackend{})

	c := client.New("localhost", 9987)
	id := client.Identity{User: "alice", Session: "default"}

	frames, err := c.VMExecuteStream(context.Background(), "ls", id, false)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var got []string
	for f := range frames {
		got = append(got, f)
	}
	if strings.Join(got, "") != "out1\nout2\n" {
		t.Errorf("frames = %v", got)
	}
}
