// Package chunker cuts a streamed model reply into speakable chunks.
//
// An Accumulator buffers incoming text deltas and releases a chunk once at
// least MinChunkLen characters are pending, preferring to cut after
// sentence punctuation, then clause punctuation, and finally forcing a cut
// at MaxChunkLen so the buffer never grows without bound. Lengths are
// counted in Unicode code points.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultMinChunkLen = 1000
	DefaultMaxChunkLen = 2000

	hardBreaks = ".!?"
	softBreaks = ",;:"
)

// Accumulator is not safe for concurrent use; it belongs to the goroutine
// reading the model stream.
type Accumulator struct {
	minLen  int
	maxLen  int
	pending string
}

// New returns an accumulator with the given thresholds. Non-positive values
// fall back to the defaults and max is raised to min when smaller.
func New(minLen, maxLen int) *Accumulator {
	if minLen <= 0 {
		minLen = DefaultMinChunkLen
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLen
	}
	if maxLen < minLen {
		maxLen = minLen
	}
	return &Accumulator{minLen: minLen, maxLen: maxLen}
}

// Feed appends delta and returns every chunk that became ready, in order.
func (a *Accumulator) Feed(delta string) []string {
	a.pending += delta

	var out []string
	for {
		n := utf8.RuneCountInString(a.pending)
		if n < a.minLen {
			return out
		}
		cut := a.breakPoint(n)
		if cut <= 0 {
			return out
		}
		out = append(out, a.pending[:cut])
		a.pending = a.pending[cut:]
	}
}

// breakPoint returns the byte offset to cut pending at, or -1 to keep
// waiting for more text. n is the rune count of pending. Break characters
// are searched over the whole buffer; a forced cut takes the first maxLen
// characters.
func (a *Accumulator) breakPoint(n int) int {
	if i := strings.LastIndexAny(a.pending, hardBreaks); i >= 0 {
		return i + 1
	}
	if n > a.maxLen {
		if i := strings.LastIndexAny(a.pending, softBreaks); i >= 0 {
			return i + 1
		}
	}
	if n >= a.maxLen {
		return runeOffset(a.pending, a.maxLen)
	}
	return -1
}

// Flush returns the remaining text if it is not blank. The buffer is
// cleared in both cases.
func (a *Accumulator) Flush() (string, bool) {
	rest := a.pending
	a.pending = ""
	if strings.TrimSpace(rest) == "" {
		return "", false
	}
	return rest, true
}

// Pending reports the number of buffered characters.
func (a *Accumulator) Pending() int {
	return utf8.RuneCountInString(a.pending)
}

func runeOffset(s string, runes int) int {
	seen := 0
	for i := range s {
		if seen == runes {
			return i
		}
		seen++
	}
	return len(s)
}
