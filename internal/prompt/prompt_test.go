package prompt

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"
	"testing/quick"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/types"
)

// ============================================
// Truncation
// ============================================

func TestTruncateUnderLimitUnchanged(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "", Truncate("", 0))
}

func TestTruncateOverLimit(t *testing.T) {
	assert.Equal(t, "hel...[truncated 2]", Truncate("hello", 3))
	// Characters, not bytes
	assert.Equal(t, "héé...[truncated 1]", Truncate("héél", 3))
}

func TestBoundKeepsExistingMarker(t *testing.T) {
	marked := strings.Repeat("x", 10) + "...[truncated 1000]"
	assert.Equal(t, marked, Bound(marked, 10))
	assert.Equal(t, "hel...[truncated 2]", Bound("hello", 3))
	// Body longer than the limit is cut again
	assert.Equal(t, "xxxxx...[truncated 24]", Bound(marked, 5))
}

func TestPropertyTruncateExact(t *testing.T) {
	f := func(s string, limit uint8) bool {
		l := int(limit)
		got := Truncate(s, l)
		n := utf8.RuneCountInString(s)
		if n <= l {
			return got == s
		}
		marker := fmt.Sprintf("...[truncated %d]", n-l)
		if !strings.HasSuffix(got, marker) {
			return false
		}
		prefix := strings.TrimSuffix(got, marker)
		return utf8.RuneCountInString(prefix) == l && strings.HasPrefix(s, prefix)
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 500}))
}

func TestSafeJSON(t *testing.T) {
	assert.Equal(t, "plain", SafeJSON("plain", 100))
	assert.Equal(t, `{"a":1}`, SafeJSON(json.RawMessage(`{ "a" : 1 }`), 100))
	assert.Equal(t, "null", SafeJSON(json.RawMessage(nil), 100))
	assert.Equal(t, `[{"html":"<b>"}]`, SafeJSON([]map[string]string{{"html": "<b>"}}, 100))
	assert.Equal(t, `[1,2...[truncated 5]`, SafeJSON([]int{1, 2, 3, 4}, 4))

	// Not encodable: falls back to fmt rendering
	assert.Equal(t, "+Inf", SafeJSON(math.Inf(1), 100))
}

// ============================================
// Prompt builders
// ============================================

func sampleSnapshot() capture.Snapshot {
	s := capture.Snapshot{}
	for i := 0; i < 25; i++ {
		s.Console = append(s.Console, types.LogEntry{Level: "log", Message: fmt.Sprintf("c%d", i), Timestamp: int64(i)})
		s.Network = append(s.Network, types.NetworkRecord{ID: fmt.Sprintf("r%d", i), URL: "https://example.com", Method: "GET"})
		s.Interactions = append(s.Interactions, types.InteractionRecord{Kind: "click", Selector: fmt.Sprintf("#b%d", i)})
	}
	s.DomSnapshots = []types.DomSnapshotRecord{{Selector: "#b1", OuterHTML: "<button>Go</button>"}}
	s.Screenshots = []types.ScreenshotRecord{
		{CapturedAt: 1699999990000},
		{CapturedAt: 1700000000000, ImageData: "data:image/png;base64,AA"},
		{CapturedAt: 1700000005000, ImageData: "data:image/png;base64,AA"},
	}
	return s
}

func TestBuildIssuePrompt(t *testing.T) {
	now := time.Date(2026, 4, 5, 6, 7, 8, 900_000_000, time.UTC)
	msgs := BuildIssuePrompt(sampleSnapshot(), IssueInput{
		Page: types.PageContext{
			URL:       "https://shop.example.com/cart",
			Viewport:  types.Viewport{Width: 1280, Height: 720},
			UserAgent: "TestAgent/1.0",
		},
		StorageSnapshot: json.RawMessage(`{"local":{"k":"v"}}`),
		PerformanceData: json.RawMessage(strings.Repeat("x", 10)),
		Now:             now,
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `"type":"issue_update"`)
	assert.Equal(t, types.RoleUser, msgs[1].Role)

	user := msgs[1].Content
	assert.Contains(t, user, "Page: https://shop.example.com/cart\n")
	assert.Contains(t, user, "Viewport: 1280x720\n")
	assert.Contains(t, user, "Captured at: 2026-04-05T06:07:08.900Z\n")
	assert.Contains(t, user, "Recent console (25):\n")
	assert.Contains(t, user, "Recent interactions (25):\n")
	assert.Contains(t, user, `"message":"c24"`)
	// Windows: last 20 console entries, last 15 interactions
	assert.NotContains(t, user, `"message":"c4"`)
	assert.NotContains(t, user, `"selector":"#b9"`)
	assert.Contains(t, user, `"selector":"#b10"`)
	assert.Contains(t, user, `<button>Go</button>`)
	assert.Contains(t, user, `{"local":{"k":"v"}}`)
	assert.Contains(t, user, "Screenshots (filenames, already downloaded): screenshot-1700000000000.png, screenshot-1700000005000.png\n")
	assert.NotContains(t, user, "screenshot-1699999990000.png", "restored frames have no file")
	assert.True(t, strings.HasSuffix(user, "Task: produce an issue_update JSON with title/body for the bug above."))
}

func TestBuildIssuePromptEmptyState(t *testing.T) {
	msgs := BuildIssuePrompt(capture.Snapshot{}, IssueInput{Now: time.Unix(0, 0)})
	user := msgs[1].Content
	assert.Contains(t, user, "Recent console (0):\n[]\n")
	assert.Contains(t, user, "Storage snapshot:\nnull\n")
	assert.Contains(t, user, "already downloaded): none\n")
}

func TestBuildIssuePromptDeterministic(t *testing.T) {
	in := IssueInput{Now: time.Unix(1700000000, 0)}
	snap := sampleSnapshot()
	assert.Equal(t, BuildIssuePrompt(snap, in), BuildIssuePrompt(snap, in))
}

func TestBuildIssuePromptTruncatesStorage(t *testing.T) {
	big := `"` + strings.Repeat("a", StorageLimit+10) + `"`
	msgs := BuildIssuePrompt(capture.Snapshot{}, IssueInput{StorageSnapshot: json.RawMessage(big), Now: time.Unix(0, 0)})
	assert.Contains(t, msgs[1].Content, "...[truncated 12]")
}

func TestBuildAssistantPrompt(t *testing.T) {
	history := []types.ChatMessage{
		{Role: types.RoleAssistant, Content: "Hi! How can I help?"},
		{Role: types.RoleUser, Content: "Why is checkout failing?"},
		{Role: types.RoleAssistant, Content: "The POST returned 500."},
		{Role: types.RoleSystem, Content: "ignored"},
		{Role: types.RoleUser, Content: "What should I try?"},
	}
	msgs := BuildAssistantPrompt(sampleSnapshot(), AssistantInput{
		UserMessage: "What should I try?",
		History:     history,
		Page:        types.PageContext{URL: "https://shop.example.com"},
		Now:         time.Unix(0, 0),
	})

	require.Len(t, msgs, 5)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Page: https://shop.example.com")
	assert.Contains(t, msgs[0].Content, "Recent network (25):")
	assert.Equal(t, "Hi! How can I help?", msgs[1].Content)
	assert.Equal(t, "The POST returned 500.", msgs[3].Content)
	assert.Equal(t, types.ChatMessage{Role: types.RoleUser, Content: "What should I try?"}, msgs[4])
}

func TestBuildAssistantPromptCapsHistory(t *testing.T) {
	var history []types.ChatMessage
	for i := 0; i < 30; i++ {
		history = append(history, types.ChatMessage{Role: types.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}
	msgs := BuildAssistantPrompt(capture.Snapshot{}, AssistantInput{UserMessage: "next", History: history})
	require.Len(t, msgs, 1+MaxAssistantHistory+1)
	assert.Equal(t, "m10", msgs[1].Content)
}

// ============================================
// Plain-text cleaning
// ============================================

func TestCleanPlainText(t *testing.T) {
	in := strings.Join([]string{
		"## Summary",
		"",
		"The **checkout** button _fails_ with `TypeError`.",
		"",
		"---",
		"",
		"- Open the [cart](https://example.com/cart)",
		"* Click ![icon](x.png) pay",
		"> quoted *note*",
		"```js",
		"fetch('/api')",
		"```",
		"",
		"",
		"",
		"Keep snake_case_names intact.",
	}, "\r\n")

	want := strings.Join([]string{
		"Summary",
		"",
		"The checkout button fails with TypeError.",
		"",
		"Open the cart",
		"Click icon pay",
		"quoted note",
		"fetch('/api')",
		"",
		"Keep snake_case_names intact.",
	}, "\n")

	assert.Equal(t, want, CleanPlainText(in))
}

func TestCleanPlainTextLeavesArithmetic(t *testing.T) {
	assert.Equal(t, "2 * 3 * 4 = 24", CleanPlainText("2 * 3 * 4 = 24"))
}

func TestCleanPlainTextIdempotent(t *testing.T) {
	inputs := []string{
		"***bold italic***",
		"# # nested header",
		"- - - -\n- item",
		"**unclosed bold",
		"[a](b) [c]( d )",
		"```\n```\n```",
		"> > double quote",
		"__a__ _b_ `c` ~~d~~",
		"line  \n\n\n\nnext",
	}
	for _, in := range inputs {
		once := CleanPlainText(in)
		assert.Equal(t, once, CleanPlainText(once), "input %q", in)
	}
}

func TestPropertyCleanIdempotent(t *testing.T) {
	alphabet := []string{"*", "_", "#", "`", "-", "+", ">", "[", "]", "(", ")", "!", "~", "\n", "\r\n", " ", "a", "b", "1"}
	f := func(picks []uint8) bool {
		var sb strings.Builder
		for _, p := range picks {
			sb.WriteString(alphabet[int(p)%len(alphabet)])
		}
		once := CleanPlainText(sb.String())
		return CleanPlainText(once) == once
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 2000}))
}

// ============================================
// Reply parsing
// ============================================

func TestParseReplyIssueUpdate(t *testing.T) {
	r := ParseReply(`{"type":"issue_update","title":"T","body":"B"}`)
	assert.True(t, r.IsIssueUpdate())
	assert.Equal(t, types.Draft{Title: "T", Body: "B"}, r.Draft())
}

func TestParseReplyFenced(t *testing.T) {
	r := ParseReply("```json\n{\"type\":\"issue_update\",\"title\":\"T\",\"body\":\"B\"}\n```")
	assert.True(t, r.IsIssueUpdate())
	assert.Equal(t, "T", r.Title)
}

func TestParseReplyChat(t *testing.T) {
	r := ParseReply(`{"type":"chat","chat":"need more detail"}`)
	assert.Equal(t, Reply{Type: ReplyChat, Chat: "need more detail"}, r)
}

func TestParseReplyFallsBackToChat(t *testing.T) {
	for _, raw := range []string{"not json at all", `{"type":"mystery"}`, `[1,2]`, ""} {
		r := ParseReply(raw)
		assert.Equal(t, ReplyChat, r.Type, "input %q", raw)
		assert.Equal(t, raw, r.Chat)
		assert.False(t, r.IsIssueUpdate())
	}
}

func TestDraftMessageRoundTrips(t *testing.T) {
	msg := DraftMessage(types.Draft{Title: "T", Body: "B"})
	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, types.Draft{Title: "T", Body: "B"}, ParseReply(msg.Content).Draft())
}
