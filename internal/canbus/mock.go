package canbus

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errPortClosed = errors.New("port closed")

// TestablePort is an in-memory Porter for tests. Reads block until data is
// added or the port is closed, like a real adapter with no traffic.
type TestablePort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// WriteError is returned by the next Write call if set.
	WriteError error
	// ShortWrite makes Write report one byte less than it was given.
	ShortWrite bool
	// CloseError is returned by Close if set.
	CloseError error

	closed   bool
	eof      bool
	readCond *sync.Cond
}

func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && !p.eof && p.readBuf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.closed {
		return 0, errPortClosed
	}
	if p.readBuf.Len() == 0 {
		return 0, io.EOF
	}
	return p.readBuf.Read(b)
}

func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	n, _ := p.writeBuf.Write(b)
	if p.ShortWrite && n > 0 {
		n--
	}
	return n, nil
}

func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCond.Broadcast()
	return p.CloseError
}

// AddReadData queues data for subsequent reads.
func (p *TestablePort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.WriteString(data)
	p.readCond.Broadcast()
}

// EndOfInput makes reads return io.EOF once the queued data is drained.
func (p *TestablePort) EndOfInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eof = true
	p.readCond.Broadcast()
}

// Written returns everything written to the port.
func (p *TestablePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}
