// Package chunker splits long conversation transcripts into windows that fit
// a summarization request.
package chunker

import (
	"strings"
)

const (
	DefaultTargetSize = 6000
	DefaultMaxSize    = 8000
)

// Options configures chunking behavior.
type Options struct {
	// TargetSize is the size turns are merged up to.
	TargetSize int
	// MaxSize is the size no chunk exceeds.
	MaxSize int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// ChunkResult represents a chunk with its position in the original transcript.
type ChunkResult struct {
	Text      string
	StartLine int
	EndLine   int
}

// Chunk splits a transcript into chunks. A transcript is one turn per
// "role: text" line; continuation lines belong to the turn above them.
// Short text (<= MaxSize) returns a single chunk.
func Chunk(text string, opts Options) []ChunkResult {
	if opts.TargetSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.MaxSize < opts.TargetSize {
		opts.MaxSize = opts.TargetSize
	}

	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	if len(text) <= opts.MaxSize {
		lines := strings.Count(text, "\n")
		return []ChunkResult{{Text: text, StartLine: 1, EndLine: lines + 1}}
	}

	return mergeTurns(splitTurns(text), opts)
}

// turn is one speaker's contribution.
type turn struct {
	text      string
	startLine int
	endLine   int
}

// isTurnStart reports whether line opens a new turn.
func isTurnStart(line string) bool {
	for _, prefix := range []string{"user:", "assistant:"} {
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return true
		}
	}
	return false
}

func splitTurns(text string) []turn {
	lines := strings.Split(text, "\n")
	var turns []turn
	var current []string
	startLine := 1

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			turns = append(turns, turn{text: t, startLine: startLine, endLine: endLine})
		}
		current = nil
		startLine = endLine + 1
	}

	for i, line := range lines {
		if isTurnStart(strings.TrimSpace(line)) && len(current) > 0 {
			flush(i)
		}
		current = append(current, line)
	}
	flush(len(lines))

	return turns
}

// mergeTurns packs consecutive turns up to TargetSize and splits oversized ones.
func mergeTurns(turns []turn, opts Options) []ChunkResult {
	var results []ChunkResult
	var accum turn

	flushAccum := func() {
		if accum.text == "" {
			return
		}
		if len(accum.text) > opts.MaxSize {
			results = append(results, hardSplit(accum.text, accum.startLine, opts)...)
		} else {
			results = append(results, ChunkResult{Text: accum.text, StartLine: accum.startLine, EndLine: accum.endLine})
		}
		accum = turn{}
	}

	for _, t := range turns {
		if accum.text == "" {
			accum = t
			continue
		}
		combined := accum.text + "\n" + t.text
		if len(combined) <= opts.TargetSize {
			accum.text = combined
			accum.endLine = t.endLine
			continue
		}
		flushAccum()
		accum = t
	}
	flushAccum()

	return results
}

// hardSplit breaks text that exceeds MaxSize on line boundaries, and a
// single overlong line on rune boundaries.
func hardSplit(text string, startLine int, opts Options) []ChunkResult {
	var results []ChunkResult
	var current strings.Builder
	curStart := startLine

	emit := func(endLine int) {
		if t := strings.TrimSpace(current.String()); t != "" {
			results = append(results, ChunkResult{Text: t, StartLine: curStart, EndLine: endLine})
		}
		current.Reset()
	}

	for i, line := range strings.Split(text, "\n") {
		lineNum := startLine + i
		if current.Len() > 0 && current.Len()+len(line)+1 > opts.TargetSize {
			emit(lineNum - 1)
			curStart = lineNum
		}
		for len(line) > opts.MaxSize {
			cut := runeBoundary(line, opts.TargetSize)
			current.WriteString(line[:cut])
			emit(lineNum)
			curStart = lineNum
			line = line[cut:]
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	emit(startLine + strings.Count(text, "\n"))

	return results
}

// runeBoundary returns the largest index <= n that starts a rune.
func runeBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	if n == 0 {
		return len(s)
	}
	return n
}
