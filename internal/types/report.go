// report.go — Draft, chat and page-context types for the report flows.
package types

// Draft is the current candidate issue. At most one is current at any time.
type Draft struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation with the LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Viewport is the page's inner window size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageContext describes the page a report is about.
type PageContext struct {
	URL       string   `json:"url"`
	Viewport  Viewport `json:"viewport"`
	UserAgent string   `json:"userAgent"`
}
