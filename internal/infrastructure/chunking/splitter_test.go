package chunking

import (
	"strings"
	"testing"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(500, 50)
	chunks := s.Split("un court paragraphe de cours")
	if len(chunks) != 1 {
		t.Fatalf("expected single chunk, got %d", len(chunks))
	}
}

func TestSplitOverlappingWindows(t *testing.T) {
	s := NewSplitter(10, 4)
	text := strings.Repeat("abcdefghij", 3)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	for _, chunk := range chunks {
		if len([]rune(chunk)) > 10 {
			t.Fatalf("chunk exceeds window: %q", chunk)
		}
	}
	// Consecutive windows share their tail and head.
	if !strings.HasPrefix(chunks[1], chunks[0][len(chunks[0])-4:]) {
		t.Fatalf("expected 4-rune overlap between %q and %q", chunks[0], chunks[1])
	}
}

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(500, 50)
	if chunks := s.Split("   "); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %v", chunks)
	}
}

func TestNewSplitterDefaults(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.ChunkSize != 500 || s.Overlap != 0 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	s = NewSplitter(100, 200)
	if s.Overlap != 10 {
		t.Fatalf("oversized overlap must shrink, got %d", s.Overlap)
	}
}
