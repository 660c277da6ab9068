package chunker

import (
	"fmt"
	"strings"
	"testing"
)

func transcript(turns int, size int) string {
	var lines []string
	for i := 0; i < turns; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: turn %d %s", role, i, strings.Repeat("x", size)))
	}
	return strings.Join(lines, "\n")
}

func TestChunk_EmptyInput(t *testing.T) {
	result := Chunk("  \n ", DefaultOptions())
	if result != nil {
		t.Errorf("expected nil, got %v", result)
	}
}

func TestChunk_ShortTranscript(t *testing.T) {
	text := "user: hi\nassistant: hello"
	result := Chunk(text, DefaultOptions())
	if len(result) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(result))
	}
	if result[0].Text != text {
		t.Errorf("expected %q, got %q", text, result[0].Text)
	}
	if result[0].StartLine != 1 || result[0].EndLine != 2 {
		t.Errorf("expected lines 1-2, got %d-%d", result[0].StartLine, result[0].EndLine)
	}
}

func TestChunk_SplitsOnTurns(t *testing.T) {
	opts := Options{TargetSize: 250, MaxSize: 300}
	text := transcript(10, 100)

	result := Chunk(text, opts)
	if len(result) < 4 {
		t.Fatalf("expected at least 4 chunks, got %d", len(result))
	}
	for i, c := range result {
		if len(c.Text) > opts.MaxSize {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c.Text))
		}
		if !isTurnStart(c.Text) {
			t.Errorf("chunk %d does not start on a turn: %q", i, c.Text[:20])
		}
	}
	if !strings.HasPrefix(result[0].Text, "user: turn 0") {
		t.Errorf("first chunk should start with turn 0, got %q", result[0].Text[:20])
	}
}

func TestChunk_KeepsContinuationLines(t *testing.T) {
	opts := Options{TargetSize: 60, MaxSize: 80}
	text := "user: first line\nstill the user\nassistant: reply " + strings.Repeat("y", 50) + "\nuser: last"

	result := Chunk(text, opts)
	if len(result) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(result))
	}
	if !strings.Contains(result[0].Text, "still the user") {
		t.Errorf("continuation line should stay with its turn, got %q", result[0].Text)
	}
}

func TestChunk_HardSplitsOversizedTurn(t *testing.T) {
	opts := Options{TargetSize: 100, MaxSize: 150}
	text := "user: " + strings.Repeat("é", 200) + "\nassistant: ok"

	result := Chunk(text, opts)
	if len(result) < 3 {
		t.Fatalf("expected oversized turn to be split, got %d chunks", len(result))
	}
	var rebuilt strings.Builder
	for i, c := range result {
		if len(c.Text) > opts.MaxSize {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c.Text))
		}
		if !strings.HasPrefix(c.Text, "assistant") {
			rebuilt.WriteString(c.Text)
		}
	}
	if strings.Count(rebuilt.String(), "é") != 200 {
		t.Errorf("split lost or broke runes: %d", strings.Count(rebuilt.String(), "é"))
	}
}

func TestChunk_MergesSmallTurns(t *testing.T) {
	opts := Options{TargetSize: 400, MaxSize: 600}
	result := Chunk(transcript(4, 10), opts)
	if len(result) != 1 {
		t.Errorf("expected 1 merged chunk, got %d", len(result))
	}
}
