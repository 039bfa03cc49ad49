package lens

import (
	"bytes"
	"sync"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

// NewLockedBuffer returns a mutex-protected buffer, used to capture output
// from interestingness commands whose stdout and stderr write concurrently.
func NewLockedBuffer() *lockedBuffer {
	return &lockedBuffer{
		buf: &bytes.Buffer{},
	}
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.Write(p)
}

func (lb *lockedBuffer) Bytes() []byte {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	b := lb.buf.Bytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.String()
}

func (lb *lockedBuffer) Len() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.Len()
}
