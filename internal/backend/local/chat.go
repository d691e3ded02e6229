package local

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ferryd/ferry/internal/stream"
)

const (
	chatMaxTokens      = 4096
	thinkBudgetTokens  = 8192
	thinkMaxTokens     = 16384
	systemPromptPrefix = "You are the team's VM assistant. Be concise and practical."
)

// chatManager owns the persistent per-user/session conversations that back
// chat affinity.
type chatManager struct {
	backend  *Backend
	client   anthropic.Client
	hasKey   bool
	mu       sync.Mutex
	sessions map[string]*chatSession
}

func newChatManager(b *Backend) *chatManager {
	m := &chatManager{
		backend:  b,
		sessions: make(map[string]*chatSession),
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		m.client = anthropic.NewClient(option.WithAPIKey(key))
		m.hasKey = true
	}
	return m
}

// session returns the conversation for user/session, creating it on first
// use.
func (m *chatManager) session(user, session string) *chatSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := user + "/" + session
	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := &chatSession{manager: m, user: user, session: session}
	m.sessions[key] = s
	return s
}

// systemPrompt builds the system prompt, folding in the user's persistent
// memory when set.
func (m *chatManager) systemPrompt(user string) string {
	prompt := systemPromptPrefix
	if memory, err := m.backend.store.GetMemory(user); err == nil && memory != "" {
		prompt += "\n\nWhat you remember about this user:\n" + memory
	}
	return prompt
}

// params assembles the generation request. Extended thinking raises the
// token ceiling and enables the thinking budget.
func (m *chatManager) params(user string, think bool, messages []anthropic.MessageParam) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.backend.cfg.ChatModel),
		MaxTokens: chatMaxTokens,
		Messages:  messages,
		System: []anthropic.TextBlockParam{
			{Text: m.systemPrompt(user)},
		},
	}
	if think {
		params.MaxTokens = thinkMaxTokens
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(thinkBudgetTokens)
	}
	return params
}

// generate streams one model turn. The returned reply callback receives the
// assembled assistant text once the turn finished cleanly.
func (m *chatManager) generate(ctx context.Context, user string, think bool, messages []anthropic.MessageParam, reply func(string)) (stream.Stream, error) {
	if !m.hasKey {
		return nil, fmt.Errorf("chat unavailable: ANTHROPIC_API_KEY is not set")
	}

	events := m.client.Messages.NewStreaming(ctx, m.params(user, think, messages))

	st := stream.NewText(16)
	go func() {
		var assistant strings.Builder
		defer func() { _ = events.Close() }()

		for events.Next() {
			event := events.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok {
				continue
			}
			assistant.WriteString(text.Text)
			if err := st.Send(ctx, text.Text); err != nil {
				st.Close(err)
				return
			}
		}
		if err := events.Err(); err != nil {
			st.Close(fmt.Errorf("chat generation: %w", err))
			return
		}
		if reply != nil {
			reply(assistant.String())
		}
		st.Close(nil)
	}()
	return st, nil
}

// TeamChat generates a one-off reply with no conversational carry-over.
func (b *Backend) TeamChat(ctx context.Context, prompt, user, session string, think bool) (stream.Stream, error) {
	if err := b.store.TouchSession(user, session); err != nil {
		return nil, err
	}
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	return b.chats.generate(ctx, user, think, messages, nil)
}

// chatSession is a persistent conversation shared by every connection bound
// to the same user/session pair.
type chatSession struct {
	manager *chatManager
	user    string
	session string
	mu      sync.Mutex
	history []anthropic.MessageParam
}

// chatStream sends prompt through the conversation, extending its history
// with the completed turn.
func (s *chatSession) chatStream(ctx context.Context, prompt string, think bool) (stream.Stream, error) {
	if err := s.manager.backend.store.TouchSession(s.user, s.session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	messages := make([]anthropic.MessageParam, len(s.history), len(s.history)+1)
	copy(messages, s.history)
	s.mu.Unlock()

	userMsg := anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))
	messages = append(messages, userMsg)

	return s.manager.generate(ctx, s.user, think, messages, func(assistant string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.history = append(s.history, userMsg,
			anthropic.NewAssistantMessage(anthropic.NewTextBlock(assistant)))
	})
}

// chatHandle is the chat-affinity handle: one connection's view of a shared
// conversation, carrying that connection's think flag.
type chatHandle struct {
	conv  *chatSession
	think bool
}

func (h *chatHandle) ChatStream(ctx context.Context, prompt string) (stream.Stream, error) {
	return h.conv.chatStream(ctx, prompt, h.think)
}

// SendNotification records a notification through the conversation's user
// scope.
func (h *chatHandle) SendNotification(ctx context.Context, message string) error {
	return h.conv.manager.backend.Notify(ctx, message, h.conv.user, h.conv.session)
}
