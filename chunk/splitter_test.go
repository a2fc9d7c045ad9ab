package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(1000, 200)
	chunks := s.Split("a short paragraph")
	if len(chunks) != 1 || chunks[0] != "a short paragraph" {
		t.Fatalf("unexpected chunks: %#v", chunks)
	}
}

func TestSplit_Empty(t *testing.T) {
	s := NewSplitter(1000, 200)
	if chunks := s.Split(""); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %#v", chunks)
	}
	if chunks := s.Split("   \n\n  "); len(chunks) != 0 {
		t.Fatalf("expected no chunks for whitespace, got %#v", chunks)
	}
}

func TestSplit_ParagraphsPreferred(t *testing.T) {
	s := NewSplitter(20, 0)
	text := "first paragraph\n\nsecond paragraph\n\nthird one"
	chunks := s.Split(text)
	if len(chunks) < 3 {
		t.Fatalf("expected paragraph-level chunks, got %#v", chunks)
	}
	for _, c := range chunks {
		if strings.Contains(c, "\n\n") {
			t.Fatalf("chunk crosses paragraph boundary: %q", c)
		}
	}
}

func TestSplit_RespectsChunkSize(t *testing.T) {
	s := NewSplitter(50, 10)
	text := strings.Repeat("word ", 200)
	for _, c := range s.Split(text) {
		if n := utf8.RuneCountInString(c); n > 50 {
			t.Fatalf("chunk too long (%d runes): %q", n, c)
		}
	}
}

func TestSplit_Overlap(t *testing.T) {
	s := NewSplitter(20, 10)
	text := "aaaa bbbb cccc dddd eeee ffff gggg"
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %#v", chunks)
	}
	// consecutive chunks must share trailing/leading content
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1]
		if idx := strings.LastIndex(prevTail, " "); idx >= 0 {
			prevTail = prevTail[idx+1:]
		}
		if !strings.Contains(chunks[i], prevTail) {
			t.Fatalf("chunk %d lacks overlap with predecessor: %q | %q", i, chunks[i-1], chunks[i])
		}
	}
}

func TestSplit_JapaneseFullStop(t *testing.T) {
	s := NewSplitter(10, 0)
	text := "これは文です。これも文です。短い。"
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected sentence-level split, got %#v", chunks)
	}
}

func TestSplit_OversizedTokenFallsThrough(t *testing.T) {
	s := NewSplitter(10, 0)
	text := strings.Repeat("x", 35) // no separators at all
	chunks := s.Split(text)
	if len(chunks) < 3 {
		t.Fatalf("expected character-level split, got %#v", chunks)
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 10 {
			t.Fatalf("chunk too long: %q", c)
		}
	}
}
