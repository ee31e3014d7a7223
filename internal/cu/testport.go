package cu

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

// TestablePort implements Port with configurable behaviour for tests in this
// and other packages. Reads block until data is added or the port closes.
type TestablePort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	readCond *sync.Cond

	// WriteError is returned by the next Write call if set.
	WriteError error
	// ShortWrite makes Write report one byte less than requested.
	ShortWrite bool
	// Closed indicates whether Close was called.
	Closed bool
	// EOF makes Read return io.EOF style end of stream once drained.
	EOF bool
}

// NewTestablePort creates a new TestablePort.
func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

var errPortClosed = errors.New("port closed")

// Read returns buffered data, blocking while the buffer is empty.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.Closed && !p.EOF && p.readBuf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.readBuf.Read(b)
}

// Write records b, optionally failing.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	n, err := p.writeBuf.Write(b)
	if p.ShortWrite && n > 0 {
		n--
	}
	return n, err
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.readCond.Broadcast()
	return nil
}

// AddLines queues lines for subsequent reads.
func (p *TestablePort) AddLines(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		p.readBuf.WriteString(l)
		p.readBuf.WriteByte('\n')
	}
	p.readCond.Broadcast()
}

// Hangup ends the read stream once buffered data has been consumed.
func (p *TestablePort) Hangup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EOF = true
	p.readCond.Broadcast()
}

// Commands returns the command lines written so far.
func (p *TestablePort) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := strings.TrimSuffix(p.writeBuf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
