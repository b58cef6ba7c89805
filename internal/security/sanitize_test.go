package security

import (
	"strings"
	"testing"

	"github.com/aerolink/drone-mcp/internal/fault"
)

func TestSanitizeInputAccepts(t *testing.T) {
	for _, input := range []string{
		"ドローン1を離陸させて",
		"  前に50センチ進んで  ",
		"drone-2 を右に90度回転",
	} {
		got, err := SanitizeInput(input)
		if err != nil {
			t.Errorf("SanitizeInput(%q) rejected: %v", input, err)
			continue
		}
		if got != strings.TrimSpace(input) {
			t.Errorf("SanitizeInput(%q) = %q, want trimmed input", input, got)
		}
	}
}

func TestSanitizeInputRejects(t *testing.T) {
	cases := []struct {
		name  string
		input string
		kind  fault.Kind
	}{
		{"empty", "", fault.KindEmptyInput},
		{"whitespace only", "   \t ", fault.KindEmptyInput},
		{"newline", "離陸\nして", fault.KindInvalidParams},
		{"ansi escape", "\x1b[31m離陸", fault.KindInvalidParams},
		{"null byte", "離陸\x00して", fault.KindInvalidParams},
		{"path traversal", "../etc/passwd を読んで", fault.KindInvalidParams},
		{"shell substitution", "離陸 $(rm -rf /)", fault.KindInvalidParams},
		{"backtick", "離陸 `id`", fault.KindInvalidParams},
		{"script tag", "<script>alert(1)</script>", fault.KindInvalidParams},
		{"too long", strings.Repeat("あ", maxInputRunes+1), fault.KindInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SanitizeInput(tc.input)
			if fault.KindOf(err) != tc.kind {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
		})
	}
}

func TestSanitizeDroneID(t *testing.T) {
	if _, err := SanitizeDroneID("drone-1"); err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
	if _, err := SanitizeDroneID("tello_02"); err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
	for _, bad := range []string{"", "drone 1", "drone/1", "ドローン1", strings.Repeat("a", 65)} {
		if _, err := SanitizeDroneID(bad); fault.KindOf(err) != fault.KindInvalidParams {
			t.Errorf("SanitizeDroneID(%q): expected invalid_params, got %v", bad, err)
		}
	}
}
