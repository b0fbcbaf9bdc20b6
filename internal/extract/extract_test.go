package extract

import (
	"context"
	"strings"
	"testing"
)

func TestExtractTextFromBytes_PlainText(t *testing.T) {
	body := []byte("  Unit 4: Fractions\nObjective: compare unlike denominators.\n")

	got, err := ExtractTextFromBytes(context.Background(), body, "text/plain; charset=utf-8", "plan.txt")
	if err != nil {
		t.Fatalf("extract plain text: %v", err)
	}
	if !strings.HasPrefix(got, "Unit 4: Fractions") {
		t.Fatalf("expected trimmed text, got %q", got)
	}
}

func TestExtractTextFromBytes_OctetStreamFallsBackToExtension(t *testing.T) {
	got, err := ExtractTextFromBytes(context.Background(), []byte("# Week 12\n"), "application/octet-stream", "plan.md")
	if err != nil {
		t.Fatalf("expected markdown extraction via extension, got error: %v", err)
	}
	if got != "# Week 12" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestExtractTextFromBytes_UnsupportedMimeRejected(t *testing.T) {
	_, err := ExtractTextFromBytes(context.Background(), []byte{0x00, 0x01}, "image/png", "photo.png")
	if err == nil {
		t.Fatal("expected unsupported mime error")
	}
	if !strings.Contains(err.Error(), "unsupported mime type: image/png") {
		t.Fatalf("unexpected error: %v", err)
	}
}
