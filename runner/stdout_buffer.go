package runner

import (
	"fmt"
	"sync"
)

const defaultStdoutTailBytes = 1024 * 1024 // kept in memory per test

// tailBuffer keeps only the last maxBytes written to it, so a result can carry
// the end of a long go test stream without holding all of it.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultStdoutTailBytes
	}
	return &tailBuffer{maxBytes: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	if len(p) >= b.maxBytes {
		b.contents = append(b.contents[:0], p[len(p)-b.maxBytes:]...)
		return len(p), nil
	}
	b.contents = append(b.contents, p...)
	if over := len(b.contents) - b.maxBytes; over > 0 {
		b.contents = append(b.contents[:0], b.contents[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(b.contents))
	copy(cp, b.contents)
	return cp
}

func (b *tailBuffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}

// buildStdoutSnippet returns the buffered tail, noting how much was dropped.
func buildStdoutSnippet(b *tailBuffer) string {
	if b == nil || b.TotalBytes() == 0 {
		return ""
	}
	tail := b.Bytes()
	if !b.Truncated() {
		return string(tail)
	}
	return fmt.Sprintf("... (%d earlier bytes omitted)\n%s", b.TotalBytes()-int64(len(tail)), tail)
}
