// reply.go — Decoding of the model's reply in the issue-drafting flow.
package prompt

import (
	"encoding/json"
	"strings"

	"github.com/EmreDinc10/bugscribe/internal/types"
)

// Reply types.
const (
	ReplyIssueUpdate = "issue_update"
	ReplyChat        = "chat"
)

// Reply is the decoded model reply: an issue update carrying Title and Body, or a
// chat reply carrying Chat. It serializes to the same shape the model was asked for.
type Reply struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Chat  string `json:"chat,omitempty"`
}

// IsIssueUpdate reports whether the reply carries a new draft.
func (r Reply) IsIssueUpdate() bool {
	return r.Type == ReplyIssueUpdate
}

// Draft returns the draft carried by an issue update.
func (r Reply) Draft() types.Draft {
	return types.Draft{Title: r.Title, Body: r.Body}
}

// ParseReply decodes content. It never fails: malformed JSON, or JSON with an
// unknown type, becomes a chat reply holding the raw text.
func ParseReply(content string) Reply {
	raw := stripFences(content)

	var r Reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Reply{Type: ReplyChat, Chat: content}
	}
	switch r.Type {
	case ReplyIssueUpdate:
		return Reply{Type: ReplyIssueUpdate, Title: r.Title, Body: r.Body}
	case ReplyChat:
		return Reply{Type: ReplyChat, Chat: r.Chat}
	default:
		return Reply{Type: ReplyChat, Chat: content}
	}
}

// stripFences unwraps a reply the model fenced despite being told not to.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	// Drop the language tag line
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

// DraftMessage renders d as the assistant turn that would have produced it.
// Used to seed a refinement conversation from a restored draft.
func DraftMessage(d types.Draft) types.ChatMessage {
	b, err := json.Marshal(Reply{Type: ReplyIssueUpdate, Title: d.Title, Body: d.Body})
	if err != nil {
		b = []byte(`{"type":"issue_update"}`)
	}
	return types.ChatMessage{Role: types.RoleAssistant, Content: string(b)}
}
