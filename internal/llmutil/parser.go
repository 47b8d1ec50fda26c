// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// taggedBlockRegex matches the first fenced block that carries a language tag
	// (```json, ```jsonc, ...). Untagged fences are prose examples and are skipped.
	taggedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60([A-Za-z0-9_+-]+)[ \t]*\r?\n(.*?)\x60\x60\x60")
)

// FencedBlock is a fenced code block located in an LLM response.
type FencedBlock struct {
	// Preamble is the text before the opening fence, trimmed.
	Preamble string
	Lang     string
	Body     string
}

// ExtractTaggedBlock returns the first fenced block with a language tag.
func ExtractTaggedBlock(response string) (FencedBlock, bool) {
	loc := taggedBlockRegex.FindStringSubmatchIndex(response)
	if loc == nil {
		return FencedBlock{}, false
	}
	return FencedBlock{
		Preamble: strings.TrimSpace(response[:loc[0]]),
		Lang:     strings.ToLower(response[loc[2]:loc[3]]),
		Body:     strings.TrimSpace(response[loc[4]:loc[5]]),
	}, true
}

// Truncate shortens s to maxLen bytes for log fields and error messages.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for error logging.
	return s[:maxLen] + "..."
}
