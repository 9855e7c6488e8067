package toolexec

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	ringBufferMaxLines = 8000
	ringBufferMaxBytes = 2 * 1024 * 1024

	modelFacingMaxLines = 2000
	modelFacingMaxBytes = 50 * 1024
)

// lineRingBuffer captures process output into a bounded buffer: at most
// ringBufferMaxLines lines and ringBufferMaxBytes bytes, dropping the
// oldest lines once either bound is exceeded and counting what was
// dropped so the final notice can report it.
type lineRingBuffer struct {
	lines      []string
	bytes      int
	dropped    int
}

func newLineRingBuffer() *lineRingBuffer {
	return &lineRingBuffer{}
}

func (b *lineRingBuffer) Append(line string) {
	b.lines = append(b.lines, line)
	b.bytes += len(line) + 1
	for (len(b.lines) > ringBufferMaxLines || b.bytes > ringBufferMaxBytes) && len(b.lines) > 0 {
		b.bytes -= len(b.lines[0]) + 1
		b.lines = b.lines[1:]
		b.dropped++
	}
}

// String renders the buffer, appending a dropped-line notice if applicable.
func (b *lineRingBuffer) String() string {
	s := strings.Join(b.lines, "\n")
	if b.dropped > 0 {
		s += "\n... [" + strconv.Itoa(b.dropped) + " earlier lines dropped] ..."
	}
	return s
}

var ansiEscapeRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// stripANSI removes ANSI/VT100 escape sequences from process output before
// it is shown to the model.
func stripANSI(s string) string {
	return ansiEscapeRe.ReplaceAllString(s, "")
}

// truncateForModel caps output to modelFacingMaxLines lines and
// modelFacingMaxBytes bytes, keeping the tail (most recent output), which
// is what a user debugging a failing command cares about.
func truncateForModel(s string) string {
	lines := strings.Split(s, "\n")
	truncatedLines := false
	if len(lines) > modelFacingMaxLines {
		lines = lines[len(lines)-modelFacingMaxLines:]
		truncatedLines = true
	}
	out := strings.Join(lines, "\n")
	if len(out) > modelFacingMaxBytes {
		out = out[len(out)-modelFacingMaxBytes:]
		truncatedLines = true
	}
	if truncatedLines {
		out = "... [output truncated] ...\n" + out
	}
	return out
}
