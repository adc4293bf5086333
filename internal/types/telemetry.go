// telemetry.go — Records held by the telemetry streams.
// JSON field names follow the extension's record shapes so stored snapshots and
// query responses can be rendered by the popup without translation.
package types

// ============================================
// Console
// ============================================

// LogEntry is one intercepted console call, uncaught error or unhandled rejection.
// Immutable once created.
type LogEntry struct {
	Level     string `json:"level"` // "log", "info", "warn", "error"
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // Unix ms
	Stack     string `json:"stack,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ============================================
// Network
// ============================================

// HTTPHeader is one request or response header as reported by the browser.
type HTTPHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Network record sources.
const (
	SourceWebRequest = "webRequest" // Browser network lifecycle callbacks
	SourceFetch      = "fetch"      // Page-script fetch wrapper
	SourceXHR        = "xhr"        // Page-script XMLHttpRequest wrapper
)

// NetworkRecord is one logical request, merged from up to three lifecycle events
// (start, headers, completion or error) that share ID.
type NetworkRecord struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Method        string `json:"method"`
	RequestType   string `json:"type,omitempty"` // "main_frame", "xmlhttprequest", "script", ...
	Timestamp     int64  `json:"timestamp"`      // Unix ms at request start
	Time          string `json:"time,omitempty"` // RFC 3339 rendering of Timestamp
	FrameID       int    `json:"frameId"`
	ParentFrameID int    `json:"parentFrameId"`
	Source        string `json:"source,omitempty"`

	RequestHeaders     []HTTPHeader `json:"requestHeaders,omitempty"`
	ResponseStatusCode *int         `json:"responseStatusCode,omitempty"`
	ResponseHeaders    []HTTPHeader `json:"responseHeaders,omitempty"`
	Error              string       `json:"error,omitempty"`

	// Page-script entries only
	DurationMs   int64  `json:"durationMs,omitempty"`
	RequestBody  string `json:"requestBody,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`
}

// Done reports whether completion or error has been recorded. A done record is
// never mutated again.
func (r *NetworkRecord) Done() bool {
	return r.ResponseStatusCode != nil || r.Error != ""
}

// Clone returns a deep copy safe to hand outside the owning table.
func (r NetworkRecord) Clone() NetworkRecord {
	out := r
	if r.RequestHeaders != nil {
		out.RequestHeaders = append([]HTTPHeader(nil), r.RequestHeaders...)
	}
	if r.ResponseHeaders != nil {
		out.ResponseHeaders = append([]HTTPHeader(nil), r.ResponseHeaders...)
	}
	if r.ResponseStatusCode != nil {
		code := *r.ResponseStatusCode
		out.ResponseStatusCode = &code
	}
	return out
}

// ============================================
// Interactions, DOM, Screenshots
// ============================================

// InteractionRecord is one user action on the page.
type InteractionRecord struct {
	Kind     string `json:"kind"` // "click", "keydown"
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Key      string `json:"key,omitempty"`
	At       int64  `json:"at"` // Unix ms
}

// DomSnapshotRecord is the outer HTML of an element the user touched.
type DomSnapshotRecord struct {
	Selector  string `json:"selector,omitempty"`
	OuterHTML string `json:"outerHTML"`
	At        int64  `json:"at"`
}

// ScreenshotRecord is one captured frame. ImageData is a data URL and is never persisted.
type ScreenshotRecord struct {
	ImageData  string `json:"dataUrl,omitempty"`
	CapturedAt int64  `json:"capturedAt"`
}

// ScreenshotFile is a screenshot as handed to the issue page.
type ScreenshotFile struct {
	Name    string `json:"name"`
	DataURL string `json:"dataUrl"`
}
