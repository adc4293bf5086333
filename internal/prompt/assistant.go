// assistant.go — Prompt builder for the free-form assistant flow.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/types"
)

// MaxAssistantHistory bounds the prior turns replayed to the model.
const MaxAssistantHistory = 20

// AssistantInput is one chat turn from the page assistant.
type AssistantInput struct {
	UserMessage     string              `json:"userMessage"`
	History         []types.ChatMessage `json:"chatHistory,omitempty"`
	Page            types.PageContext   `json:"pageContext"`
	StorageSnapshot json.RawMessage     `json:"storageSnapshot,omitempty"`
	PerformanceData json.RawMessage     `json:"performanceData,omitempty"`

	Now time.Time `json:"-"`
}

const assistantInstructions = "You are BugScribe Assistant, helping a user understand what is happening on the web page they are looking at. " +
	"Use the captured console output, network activity, interactions and page state below to explain problems and suggest next steps. " +
	"Answer in short plain-text paragraphs. Do not use Markdown, headings, bullet lists, code fences or links."

// BuildAssistantPrompt renders system context, prior turns and the new user
// message. The model is expected to answer in prose.
func BuildAssistantPrompt(snap capture.Snapshot, in AssistantInput) []types.ChatMessage {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	lines := []string{
		assistantInstructions,
		"",
		"Page: " + in.Page.URL,
		fmt.Sprintf("Viewport: %dx%d", in.Page.Viewport.Width, in.Page.Viewport.Height),
		"User agent: " + in.Page.UserAgent,
		"Captured at: " + now.UTC().Format(isoMillis),
	}
	lines = append(lines, telemetryLines(snap, in.StorageSnapshot, in.PerformanceData)...)

	msgs := []types.ChatMessage{{Role: types.RoleSystem, Content: strings.Join(lines, "\n")}}

	history := conversational(in.History)
	// The page appends the outgoing message to its history before sending
	if n := len(history); n > 0 && history[n-1].Role == types.RoleUser && history[n-1].Content == in.UserMessage {
		history = history[:n-1]
	}
	history = last(history, MaxAssistantHistory)
	msgs = append(msgs, history...)

	return append(msgs, types.ChatMessage{Role: types.RoleUser, Content: in.UserMessage})
}

// conversational keeps only user and assistant turns with content.
func conversational(history []types.ChatMessage) []types.ChatMessage {
	out := make([]types.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		if m.Role == types.RoleUser || m.Role == types.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}
