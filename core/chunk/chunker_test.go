package chunk

import (
	"strings"
	"testing"

	"github.com/gaurav-prasanna/tutorialpipe/core"
)

func TestChunkRespectsLimit(t *testing.T) {
	c := New(5)
	text := "one two three\n\nfour five six seven\n\n" + strings.Repeat("w ", 12)
	chunks := c.Chunk(text)
	for _, ch := range chunks {
		if n := len(strings.Fields(ch)); n > 5 {
			t.Errorf("chunk %q has %d words", ch, n)
		}
	}
	if chunks[0] != "one two three" {
		t.Errorf("first chunk = %q", chunks[0])
	}
	if len(chunks) != 5 {
		t.Errorf("got %d chunks, want 5: %q", len(chunks), chunks)
	}
}

func TestChunkEmpty(t *testing.T) {
	if got := New(0).Chunk("   \n\n  "); got != nil {
		t.Errorf("Chunk(blank) = %q, want nil", got)
	}
}

func TestSplitRenumbers(t *testing.T) {
	blocks := []core.Block{
		{Text: "Intro", Kind: core.KindText, Level: 1, Order: 0},
		{Text: strings.Repeat("word ", 7), Kind: core.KindText, Order: 1},
		{Text: strings.Repeat("x := 1\n", 20), Kind: core.KindCode, Order: 2},
	}
	got := New(3).Split(blocks)
	if len(got) != 5 {
		t.Fatalf("got %d blocks, want 5", len(got))
	}
	for i, b := range got {
		if b.Order != i {
			t.Errorf("block %d has Order %d", i, b.Order)
		}
	}
	if got[4].Kind != core.KindCode {
		t.Errorf("code block was split or moved: %+v", got[4])
	}
}
