// clean.go — Markdown-to-plain-text pass for assistant replies.
//
// Every rule only deletes characters, so each change shortens the text. Clean
// repeats the pass until the output stops changing; the result is a fixed point,
// which makes Clean(Clean(x)) == Clean(x).
package prompt

import (
	"regexp"
	"strings"
)

type cleanRule struct {
	re   *regexp.Regexp
	repl string
}

var cleanRules = []cleanRule{
	// Fence lines go, fenced content stays
	{regexp.MustCompile("(?m)^[ \\t]*(?:```|~~~)[^\\n]*(?:\\n|$)"), ""},
	// Horizontal rules (RE2 has no backreferences, so one alternative per marker)
	{regexp.MustCompile(`(?m)^[ \t]*(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})(?:\n|$)`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`), ""},
	{regexp.MustCompile(`(?m)^([ \t]*)[-*+][ \t]+`), "$1"},
	{regexp.MustCompile(`!\[([^\]\n]*)\]\([^)\n]*\)`), "$1"},
	{regexp.MustCompile(`\[([^\]\n]+)\]\([^)\n]*\)`), "$1"},
	{regexp.MustCompile(`\*\*(\S(?:[^*\n]*\S)?)\*\*`), "$1"},
	{regexp.MustCompile(`__(\S(?:[^_\n]*\S)?)__`), "$1"},
	{regexp.MustCompile(`~~(\S(?:[^~\n]*\S)?)~~`), "$1"},
	{regexp.MustCompile(`\*(\S(?:[^*\n]*\S)?)\*`), "$1"},
	// Underscore emphasis only at word edges so snake_case survives
	{regexp.MustCompile(`(^|[^\w])_(\S(?:[^_\n]*\S)?)_([^\w]|$)`), "$1$2$3"},
	{regexp.MustCompile("`([^`\\n]+)`"), "$1"},
	{regexp.MustCompile(`(?m)[ \t]+$`), ""},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// CleanPlainText strips residual Markdown (fences, headers, emphasis, inline code,
// links, images, bullets, blockquotes, rules) down to plain text.
func CleanPlainText(s string) string {
	for {
		next := cleanPass(s)
		if next == s {
			return s
		}
		s = next
	}
}

func cleanPass(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range cleanRules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return strings.TrimSpace(s)
}
