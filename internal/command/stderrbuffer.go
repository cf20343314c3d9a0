package command

import "bytes"

// stderrBuffer implements io.Writer and buffers output with a limited
// total size and per-line length. Writes never fail; data past the
// limits is dropped.
type stderrBuffer struct {
	buf       bytes.Buffer
	bufLimit  int
	lineLimit int

	currentLineLength int
}

func newStderrBuffer(bufLimit, lineLimit int) *stderrBuffer {
	return &stderrBuffer{bufLimit: bufLimit, lineLimit: lineLimit}
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	n := len(p)

	for len(p) > 0 && b.buf.Len() < b.bufLimit {
		line := p
		sawNewline := false
		if i := bytes.IndexByte(p, '\n'); i >= 0 {
			line, p = p[:i], p[i+1:]
			sawNewline = true
		} else {
			p = nil
		}

		if room := b.lineLimit - b.currentLineLength; len(line) > room {
			line = line[:room]
		}
		if room := b.bufLimit - b.buf.Len(); len(line) > room {
			line = line[:room]
		}
		b.buf.Write(line)

		if sawNewline {
			b.currentLineLength = 0
			if b.buf.Len() < b.bufLimit {
				b.buf.WriteByte('\n')
			}
		} else {
			b.currentLineLength += len(line)
		}
	}

	return n, nil
}

func (b *stderrBuffer) Len() int { return b.buf.Len() }

func (b *stderrBuffer) String() string { return b.buf.String() }
