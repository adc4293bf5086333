// assistant.go — Free-form page assistant with per-(tab, url) chat history.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/llm"
	"github.com/EmreDinc10/bugscribe/internal/persistence"
	"github.com/EmreDinc10/bugscribe/internal/prompt"
	"github.com/EmreDinc10/bugscribe/internal/types"
	"github.com/EmreDinc10/bugscribe/internal/util"
)

// HistoryStore persists assistant conversations.
type HistoryStore interface {
	LoadChatHistory(ctx context.Context, tabID int, url string) ([]types.ChatMessage, error)
	SaveChatHistory(ctx context.Context, tabID int, url string, history []types.ChatMessage) error
}

// ChatInput is one assistant turn with the conversation's identity.
type ChatInput struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
	prompt.AssistantInput
}

// ChatResult is the cleaned reply and the conversation after this turn.
type ChatResult struct {
	Reply   string              `json:"reply"`
	History []types.ChatMessage `json:"chatHistory"`
}

// Assistant answers questions about the live page.
type Assistant struct {
	capture *capture.Capture
	client  llm.Client
	store   HistoryStore
	logger  *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*convLock
}

// convLock serializes turns of one conversation. refs counts holders and waiters;
// the entry is removed when it drops to zero.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// NewAssistant creates an assistant. store may be nil, in which case history is
// only what the caller supplies.
func NewAssistant(c *capture.Capture, client llm.Client, store HistoryStore, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		capture: c,
		client:  client,
		store:   store,
		logger:  logger.Named("assistant"),
		locks:   make(map[string]*convLock),
	}
}

// lock takes the lock for one conversation and returns its release. Turns in
// different tabs run concurrently; turns in the same conversation queue up.
func (a *Assistant) lock(tabID int, url string) (unlock func()) {
	key := fmt.Sprintf("%d\x00%s", tabID, url)

	a.locksMu.Lock()
	l, ok := a.locks[key]
	if !ok {
		l = &convLock{}
		a.locks[key] = l
	}
	l.refs++
	a.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, key)
		}
		a.locksMu.Unlock()
	}
}

// ChatWithContext answers in.UserMessage using live telemetry. When the caller
// sends no history, the stored conversation for (tab, url) is used. The reply is
// cleaned to plain text and the conversation is persisted; persistence failures
// are logged and do not fail the turn.
func (a *Assistant) ChatWithContext(ctx context.Context, in ChatInput) (ChatResult, error) {
	if strings.TrimSpace(in.UserMessage) == "" {
		return ChatResult{}, ErrEmptyPrompt
	}

	defer a.lock(in.TabID, in.URL)()

	history := in.History
	if len(history) == 0 && a.store != nil {
		stored, err := a.store.LoadChatHistory(ctx, in.TabID, in.URL)
		switch {
		case err == nil:
			history = stored
		case errors.Is(err, persistence.ErrMissingIdentifiers):
		default:
			a.logger.Warn("load chat history failed", zap.Error(err))
		}
	}

	input := in.AssistantInput
	input.History = history
	messages := prompt.BuildAssistantPrompt(a.capture.Snapshot(), input)

	reply, err := a.client.Complete(ctx, llm.Request{Messages: messages})
	if err != nil {
		a.logger.Warn("assistant call failed", zap.String("origin", util.LogURL(in.URL)), zap.Error(err))
		return ChatResult{}, fmt.Errorf("chat with context: %w", err)
	}
	text := prompt.CleanPlainText(reply.Content)

	updated := make([]types.ChatMessage, 0, len(history)+2)
	updated = append(updated, history...)
	if n := len(updated); n == 0 || updated[n-1].Role != types.RoleUser || updated[n-1].Content != in.UserMessage {
		updated = append(updated, types.ChatMessage{Role: types.RoleUser, Content: in.UserMessage})
	}
	updated = append(updated, types.ChatMessage{Role: types.RoleAssistant, Content: text})

	if a.store != nil {
		if err := a.store.SaveChatHistory(ctx, in.TabID, in.URL, updated); err != nil && !errors.Is(err, persistence.ErrMissingIdentifiers) {
			a.logger.Warn("save chat history failed", zap.Error(err))
		}
	}
	return ChatResult{Reply: text, History: updated}, nil
}
