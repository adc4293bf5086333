// truncate.go — Bounded serialization for prompt sub-documents.
// Every embedded sub-document is cut at a fixed character budget and marked, never
// silently dropped.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"
)

// DefaultLimit is the character budget for a sub-document when none is given.
const DefaultLimit = 5000

// Truncate returns s unchanged when it has at most limit characters. Otherwise it
// returns the first limit characters followed by "...[truncated N]", where N is the
// exact number of characters cut.
func Truncate(s string, limit int) string {
	if limit < 0 {
		limit = 0
	}
	n := utf8.RuneCountInString(s)
	if n <= limit {
		return s
	}

	// Walk to the byte offset of the limit-th rune
	cut := 0
	for i := 0; i < limit; i++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return s[:cut] + "...[truncated " + strconv.Itoa(n-limit) + "]"
}

var truncatedSuffix = regexp.MustCompile(`\.\.\.\[truncated \d+\]$`)

// Bound is Truncate for text a producer may already have cut with the same
// marker. A body of at most limit characters followed by a marker is kept as is,
// so the producer's overflow count survives.
func Bound(s string, limit int) string {
	if loc := truncatedSuffix.FindStringIndex(s); loc != nil && utf8.RuneCountInString(s[:loc[0]]) <= limit {
		return s
	}
	return Truncate(s, limit)
}

// SafeJSON renders v for a prompt: strings pass through, raw JSON is compacted,
// anything else is JSON-encoded. Values that cannot be encoded fall back to their
// fmt rendering. The result is cut with Truncate.
func SafeJSON(v any, limit int) string {
	return Truncate(stringify(v), limit)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case json.RawMessage:
		if len(bytes.TrimSpace(val)) == 0 {
			return "null"
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, val); err != nil {
			return string(val)
		}
		return buf.String()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Page markup and URLs should read as written, not as < escapes
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
