package bytestream_test

import (
	"testing"

	"github.com/hexlake/pqscan/bytestream"
)

func TestSliceReadAdvances(t *testing.T) {
	s := bytestream.NewSlice([]byte("hello world"), 1000)
	b, err := s.ReadBytes(5)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("got %q, want %q", b, "hello")
	}
	if s.FileOffset() != 1005 {
		t.Fatalf("FileOffset() = %d, want 1005", s.FileOffset())
	}
}

func TestSliceReadPastEndFails(t *testing.T) {
	s := bytestream.NewSlice([]byte("short"), 0)
	if _, err := s.ReadBytes(10); err == nil {
		t.Fatal("expected error reading past end of data")
	}
}

func TestSlicePeekDoesNotAdvance(t *testing.T) {
	s := bytestream.NewSlice([]byte("abcdef"), 0)
	b, err := s.PeekBytes(3)
	if err != nil {
		t.Fatalf("PeekBytes: %v", err)
	}
	if string(b) != "abc" {
		t.Fatalf("got %q, want %q", b, "abc")
	}
	if s.FileOffset() != 0 {
		t.Fatalf("Peek must not advance, FileOffset() = %d", s.FileOffset())
	}
}

func TestSlicePeekPastEndTruncatesWithoutError(t *testing.T) {
	s := bytestream.NewSlice([]byte("abc"), 0)
	b, err := s.PeekBytes(100)
	if err != nil {
		t.Fatalf("PeekBytes must not fail solely because n exceeds remaining: %v", err)
	}
	if string(b) != "abc" {
		t.Fatalf("got %q, want %q", b, "abc")
	}
}

func TestSliceSkipAndEOF(t *testing.T) {
	s := bytestream.NewSlice([]byte("abcdef"), 0)
	if s.EOF() {
		t.Fatal("fresh slice must not report EOF")
	}
	if err := s.SkipBytes(6); err != nil {
		t.Fatalf("SkipBytes: %v", err)
	}
	if !s.EOF() {
		t.Fatal("expected EOF after skipping all bytes")
	}
	if err := s.SkipBytes(1); err == nil {
		t.Fatal("expected error skipping past end")
	}
}
