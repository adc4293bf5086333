// drafter.go — Issue drafting and refinement through the LLM collaborator.
// The drafter owns the issue conversation. The request snapshot is taken before the
// model call starts, so ingestion keeps running while the call is in flight.
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
	"github.com/EmreDinc10/bugscribe/internal/prompt"
	"github.com/EmreDinc10/bugscribe/internal/types"
)

// ErrEmptyPrompt is returned when a refinement or chat message is blank.
var ErrEmptyPrompt = errors.New("prompt is empty")

// Result is what the issue flows hand back to the UI.
type Result struct {
	Draft            *types.Draft `json:"draft"`
	AssistantContent prompt.Reply `json:"assistantContent"`
}

// PageReady is everything the issue page needs to prefill itself.
type PageReady struct {
	Draft            *types.Draft           `json:"draft"`
	AssistantContent string                 `json:"assistantContent,omitempty"`
	Screenshots      []types.ScreenshotFile `json:"screenshots"`
}

// Drafter runs the structured issue flow.
type Drafter struct {
	callMu sync.Mutex // serializes model calls so history never interleaves

	mu      sync.Mutex // guards history; never held across a model call
	history []types.ChatMessage

	capture *capture.Capture
	client  llm.Client
	logger  *zap.Logger
}

// NewDrafter creates a drafter over c.
func NewDrafter(c *capture.Capture, client llm.Client, logger *zap.Logger) *Drafter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafter{capture: c, client: client, logger: logger.Named("drafter")}
}

// PrepareReport drafts a new issue from current telemetry. The issue conversation
// restarts from the fresh prompt; on failure the previous conversation is kept.
func (d *Drafter) PrepareReport(ctx context.Context, in prompt.IssueInput) (Result, error) {
	snap := d.capture.Snapshot()
	messages := prompt.BuildIssuePrompt(snap, in)

	d.callMu.Lock()
	defer d.callMu.Unlock()

	reply, err := d.client.Complete(ctx, llm.Request{Messages: messages, JSONMode: true})
	if err != nil {
		d.logger.Warn("prepare report failed", zap.Error(err))
		return Result{}, fmt.Errorf("prepare report: %w", err)
	}

	d.commit(append(messages, reply))
	return d.apply(reply), nil
}

// RefineDraft sends a user instruction against the running conversation. With no
// conversation but a restored draft, the draft seeds it as the assistant's last
// turn. A failed call leaves history and draft untouched.
func (d *Drafter) RefineDraft(ctx context.Context, userMessage string) (Result, error) {
	if strings.TrimSpace(userMessage) == "" {
		return Result{}, ErrEmptyPrompt
	}

	d.callMu.Lock()
	defer d.callMu.Unlock()

	history := d.History()
	if len(history) == 0 {
		if draft, ok := d.capture.Draft(); ok {
			history = append(history, prompt.DraftMessage(draft))
		}
	}
	history = append(history, types.ChatMessage{Role: types.RoleUser, Content: userMessage})

	reply, err := d.client.Complete(ctx, llm.Request{Messages: history, JSONMode: true})
	if err != nil {
		d.logger.Warn("refine draft failed", zap.Error(err))
		return Result{}, fmt.Errorf("refine draft: %w", err)
	}

	d.commit(append(history, reply))
	return d.apply(reply), nil
}

func (d *Drafter) commit(history []types.ChatMessage) {
	d.mu.Lock()
	d.history = history
	d.mu.Unlock()
}

// apply parses reply and, for an issue update, replaces the current draft.
func (d *Drafter) apply(reply types.ChatMessage) Result {
	parsed := prompt.ParseReply(reply.Content)
	if parsed.IsIssueUpdate() {
		d.capture.SetDraft(parsed.Draft())
	} else {
		d.logger.Debug("model replied with chat")
	}

	res := Result{AssistantContent: parsed}
	if draft, ok := d.capture.Draft(); ok {
		res.Draft = &draft
	}
	return res
}

// IssuePageReady returns the current draft, the last assistant turn and the
// screenshot files to attach. It does not wait for an in-flight model call.
func (d *Drafter) IssuePageReady() PageReady {
	out := PageReady{Screenshots: []types.ScreenshotFile{}}
	if draft, ok := d.capture.Draft(); ok {
		out.Draft = &draft
	}

	d.mu.Lock()
	for i := len(d.history) - 1; i >= 0; i-- {
		if d.history[i].Role == types.RoleAssistant {
			out.AssistantContent = d.history[i].Content
			break
		}
	}
	d.mu.Unlock()

	for _, s := range d.capture.Screenshots() {
		if s.ImageData == "" {
			// Restored from a snapshot, image not kept
			continue
		}
		out.Screenshots = append(out.Screenshots, types.ScreenshotFile{
			Name:    prompt.ScreenshotName(s.CapturedAt),
			DataURL: s.ImageData,
		})
	}
	return out
}

// History returns a copy of the issue conversation.
func (d *Drafter) History() []types.ChatMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.ChatMessage(nil), d.history...)
}
