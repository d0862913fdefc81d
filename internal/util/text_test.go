package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxBytes int
		want     string
	}{
		{"shorter than cap", "hello", 10, "hello"},
		{"exact cap", "hello", 5, "hello"},
		{"ascii cut", "hello world", 5, "hello"},
		{"multibyte boundary kept", "日本語", 6, "日本"},
		{"multibyte boundary split", "日本語", 7, "日本"},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateUTF8(tt.in, tt.maxBytes)
			if got != tt.want {
				t.Errorf("TruncateUTF8(%q, %d) = %q, want %q", tt.in, tt.maxBytes, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result %q is not valid UTF-8", got)
			}
		})
	}
}

func TestTruncateUTF8LongMixedInput(t *testing.T) {
	in := strings.Repeat("編集記事の要約テキスト", 60)
	got := TruncateUTF8(in, 500)
	if len(got) > 500 {
		t.Fatalf("len = %d, want <= 500", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("result is not valid UTF-8")
	}
	if !strings.HasPrefix(in, got) {
		t.Fatal("result is not a prefix of the input")
	}
}
