package hashx

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestContentHash_StableAndHex(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("hello"))
	if a != b {
		t.Fatalf("hash not stable: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == ContentHash([]byte("hello!")) {
		t.Fatal("different content produced identical hash")
	}
}

func TestTextPreview_CollapsesWhitespace(t *testing.T) {
	got := TextPreview([]byte("  Hello\n\tWorld  "))
	if got != "Hello World" {
		t.Fatalf("expected %q, got %q", "Hello World", got)
	}
}

func TestTextPreview_Truncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := TextPreview([]byte(long))
	if utf8.RuneCountInString(got) != PreviewMaxLen {
		t.Fatalf("expected %d runes, got %d", PreviewMaxLen, utf8.RuneCountInString(got))
	}
}

func TestTextPreview_MultibyteSafe(t *testing.T) {
	long := strings.Repeat("ё", 300)
	got := TextPreview([]byte(long))
	if !utf8.ValidString(got) {
		t.Fatal("preview is not valid UTF-8")
	}
	if utf8.RuneCountInString(got) != PreviewMaxLen {
		t.Fatalf("expected %d runes, got %d", PreviewMaxLen, utf8.RuneCountInString(got))
	}
}

func TestBinaryPreview(t *testing.T) {
	got := BinaryPreview("Image", 1024)
	if got != "Image (1024 bytes)" {
		t.Fatalf("unexpected preview: %q", got)
	}
}
