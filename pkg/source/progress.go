package source

import "sync/atomic"

// Progress counts bytes written so far. It is shared between the fetch
// goroutine and the poll loop observing it, so all access is atomic.
type Progress struct {
	n atomic.Int64
}

// NewProgress returns a zeroed counter.
func NewProgress() *Progress {
	return &Progress{}
}

// Write implements io.Writer; it never fails.
func (p *Progress) Write(b []byte) (int, error) {
	p.n.Add(int64(len(b)))
	return len(b), nil
}

// Bytes returns the number of bytes written so far.
func (p *Progress) Bytes() int64 {
	return p.n.Load()
}
