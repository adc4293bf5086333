// wire.go — Wire types for inbound events posted by the extension.
// Every event is a tagged envelope; Payload is decoded per tag by the ingest router.
package types

import "encoding/json"

// Event tags.
const (
	EventPageActive             = "page-active"
	EventTabActivated           = "tab-activated"
	EventTabRemoved             = "tab-removed"
	EventConsoleEntry           = "log-console-entry"
	EventConsoleLog             = "console-log" // Alias sent by the isolated-world hook
	EventInteraction            = "interaction-log"
	EventDomSnapshot            = "dom-snapshot"
	EventNetworkLog             = "network-log"
	EventNetworkRequestStart    = "network-request-start"
	EventNetworkRequestHeaders  = "network-request-headers"
	EventNetworkRequestComplete = "network-request-complete"
	EventNetworkRequestError    = "network-request-error"
	EventScreenshot             = "screenshot"
	EventSetLogging             = "set-logging"
)

// Event is the tagged envelope for one inbound message.
// TabID and URL identify the sender tab when the producer has one.
type Event struct {
	Type    string          `json:"type"`
	TabID   int             `json:"tabId,omitempty"`
	URL     string          `json:"url,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConsolePayload covers both console hooks: the main-world hook sends Message and
// Timestamp, the isolated hook sends pre-stringified Args.
type ConsolePayload struct {
	Level     string            `json:"level"`
	Message   json.RawMessage   `json:"message,omitempty"`
	Args      []json.RawMessage `json:"args,omitempty"`
	Timestamp float64           `json:"timestamp,omitempty"`
	Stack     string            `json:"stack,omitempty"`
	URL       string            `json:"url,omitempty"`
}

// InteractionPayload is a click or keydown from the recorder.
type InteractionPayload struct {
	Kind     string `json:"kind"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Key      string `json:"key,omitempty"`
}

// DomSnapshotPayload is the outer HTML of the clicked element.
type DomSnapshotPayload struct {
	Selector  string `json:"selector,omitempty"`
	OuterHTML string `json:"outerHTML"`
}

// NetworkLogPayload is a completed request observed by the fetch or xhr wrapper.
// Status is a number, or the string "error" when the call failed. ResponseHeaders
// is an object for fetch and a raw header block for xhr.
type NetworkLogPayload struct {
	Kind            string          `json:"kind"`
	URL             string          `json:"url"`
	Method          string          `json:"method"`
	Status          json.RawMessage `json:"status,omitempty"`
	DurationMs      int64           `json:"durationMs,omitempty"`
	RequestBody     json.RawMessage `json:"requestBody,omitempty"`
	ResponseHeaders json.RawMessage `json:"responseHeaders,omitempty"`
	ResponseBody    json.RawMessage `json:"responseBody,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// RequestStartPayload mirrors the browser's before-request details.
type RequestStartPayload struct {
	RequestID     string  `json:"requestId"`
	URL           string  `json:"url"`
	Method        string  `json:"method"`
	Type          string  `json:"type,omitempty"`
	TimeStamp     float64 `json:"timeStamp"`
	FrameID       int     `json:"frameId"`
	ParentFrameID int     `json:"parentFrameId"`
}

// RequestHeadersPayload mirrors the browser's before-send-headers details.
type RequestHeadersPayload struct {
	RequestID      string       `json:"requestId"`
	RequestHeaders []HTTPHeader `json:"requestHeaders"`
}

// RequestCompletePayload mirrors the browser's completed details.
type RequestCompletePayload struct {
	RequestID       string       `json:"requestId"`
	StatusCode      int          `json:"statusCode"`
	ResponseHeaders []HTTPHeader `json:"responseHeaders"`
}

// RequestErrorPayload mirrors the browser's error-occurred details.
type RequestErrorPayload struct {
	RequestID string `json:"requestId"`
	Error     string `json:"error"`
}

// ScreenshotPayload is a frame captured by the extension in answer to a relay command.
type ScreenshotPayload struct {
	DataURL    string `json:"dataUrl"`
	CapturedAt int64  `json:"capturedAt,omitempty"`
}

// SetLoggingPayload toggles network capture.
type SetLoggingPayload struct {
	Enabled bool `json:"enabled"`
}
