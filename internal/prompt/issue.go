// issue.go — Prompt builder for the structured issue-drafting flow.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EmreDinc10/bugscribe/internal/capture"
	"github.com/EmreDinc10/bugscribe/internal/types"
)

// Window sizes and character budgets for each embedded sub-document.
const (
	ConsoleWindow     = 20
	NetworkWindow     = 20
	InteractionWindow = 15
	DomWindow         = 5

	StorageLimit     = 4000
	PerformanceLimit = 2000
)

// isoMillis matches the timestamp format the extension renders for users.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// IssueInput is the page-side context collected at the moment of the request.
type IssueInput struct {
	Page            types.PageContext `json:"pageContext"`
	StorageSnapshot json.RawMessage   `json:"storageSnapshot,omitempty"`
	PerformanceData json.RawMessage   `json:"performanceData,omitempty"`

	// Now stamps "Captured at". Zero means time.Now().
	Now time.Time `json:"-"`
}

var issueSystemPrompt = strings.Join([]string{
	"You prepare GitHub issue drafts and chat responses.",
	"Always respond with a single JSON object, no code fences, no extra text.",
	`If updating the issue, respond with {"type":"issue_update","title":"...","body":"..."} where body is Markdown with sections: Summary, Steps to Reproduce, Expected Result, Actual Result, Console, Network, User Actions, Screenshots, Environment. Keep concise bullet points.`,
	`If the user is just chatting or you cannot update, respond with {"type":"chat","chat":"..."}`,
	"Do not wrap the JSON in Markdown.",
}, " ")

// BuildIssuePrompt renders the two-message request for a new issue draft.
// It is a pure function of snap and in.
func BuildIssuePrompt(snap capture.Snapshot, in IssueInput) []types.ChatMessage {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	lines := []string{
		"Page: " + in.Page.URL,
		fmt.Sprintf("Viewport: %dx%d", in.Page.Viewport.Width, in.Page.Viewport.Height),
		"User agent: " + in.Page.UserAgent,
		"Captured at: " + now.UTC().Format(isoMillis),
	}
	lines = append(lines, telemetryLines(snap, in.StorageSnapshot, in.PerformanceData)...)
	lines = append(lines,
		"Screenshots (filenames, already downloaded): "+screenshotList(snap.Screenshots),
		"Task: produce an issue_update JSON with title/body for the bug above.",
	)

	return []types.ChatMessage{
		{Role: types.RoleSystem, Content: issueSystemPrompt},
		{Role: types.RoleUser, Content: strings.Join(lines, "\n")},
	}
}

// telemetryLines renders the bounded digest shared by both prompt builders.
func telemetryLines(snap capture.Snapshot, storage, perf json.RawMessage) []string {
	return []string{
		fmt.Sprintf("Recent console (%d):", len(snap.Console)),
		SafeJSON(last(snap.Console, ConsoleWindow), DefaultLimit),
		fmt.Sprintf("Recent network (%d):", len(snap.Network)),
		SafeJSON(last(snap.Network, NetworkWindow), DefaultLimit),
		fmt.Sprintf("Recent interactions (%d):", len(snap.Interactions)),
		SafeJSON(last(snap.Interactions, InteractionWindow), DefaultLimit),
		"DOM snapshot:",
		SafeJSON(last(snap.DomSnapshots, DomWindow), DefaultLimit),
		"Storage snapshot:",
		SafeJSON(storage, StorageLimit),
		"Performance:",
		SafeJSON(perf, PerformanceLimit),
	}
}

// ScreenshotName is the file name a screenshot is downloaded under.
func ScreenshotName(capturedAt int64) string {
	return fmt.Sprintf("screenshot-%d.png", capturedAt)
}

// screenshotList names the frames the issue page can attach. Frames restored from
// a snapshot carry no image and are left out, matching IssuePageReady.
func screenshotList(shots []types.ScreenshotRecord) string {
	names := make([]string, 0, len(shots))
	for _, s := range shots {
		if s.ImageData == "" {
			continue
		}
		names = append(names, ScreenshotName(s.CapturedAt))
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// last returns the newest n items; always non-nil so empty windows render as [].
func last[T any](items []T, n int) []T {
	if len(items) <= n {
		if items == nil {
			return []T{}
		}
		return items
	}
	return items[len(items)-n:]
}
