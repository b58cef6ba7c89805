package security

import (
	"strings"
	"unicode"

	"github.com/aerolink/drone-mcp/internal/fault"
)

// maxInputRunes bounds natural language input before tokenization.
const maxInputRunes = 2000

// suspiciousSequences are substrings that have no place in natural language
// drone commands and indicate injection attempts.
var suspiciousSequences = []struct {
	pattern string
	reason  string
}{
	{"../", "path traversal"},
	{`..\`, "path traversal"},
	{"$(", "shell substitution"},
	{"`", "shell substitution"},
	{"${", "template injection"},
	{"<script", "markup injection"},
	{"\x00", "null byte"},
}

// SanitizeInput validates raw request text before it reaches the language
// pipeline. The returned string has surrounding whitespace trimmed; rejected
// input yields an invalid_params fault naming the category of the violation,
// never echoing the offending bytes.
func SanitizeInput(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fault.New(fault.KindEmptyInput, "input is empty")
	}

	runes := []rune(trimmed)
	if len(runes) > maxInputRunes {
		return "", fault.Newf(fault.KindInvalidParams, "input exceeds %d characters", maxInputRunes)
	}

	for _, r := range runes {
		if r == '\n' || r == '\r' {
			return "", fault.New(fault.KindInvalidParams, "input contains line breaks")
		}
		if r == 0x1b {
			return "", fault.New(fault.KindInvalidParams, "input contains escape sequences")
		}
		if unicode.IsControl(r) && r != '\t' {
			return "", fault.New(fault.KindInvalidParams, "input contains control characters")
		}
	}

	lowered := strings.ToLower(trimmed)
	for _, seq := range suspiciousSequences {
		if strings.Contains(lowered, seq.pattern) {
			return "", fault.Newf(fault.KindInvalidParams, "input rejected: %s", seq.reason)
		}
	}

	return trimmed, nil
}

// SanitizeDroneID validates a drone identifier: ASCII letters, digits,
// hyphen and underscore, at most 64 characters.
func SanitizeDroneID(id string) (string, error) {
	if id == "" {
		return "", fault.New(fault.KindInvalidParams, "drone id is empty")
	}
	if len(id) > 64 {
		return "", fault.New(fault.KindInvalidParams, "drone id too long")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return "", fault.New(fault.KindInvalidParams, "drone id contains invalid characters")
		}
	}
	return id, nil
}
