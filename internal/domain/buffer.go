package domain

import (
	"errors"
	"io"
)

const DefaultBufferSize = 4096

// Buffer is the single staging area shared by the handshake and the tunnel.
// Bytes in [written, stored) have been read but not yet forwarded.
type Buffer struct {
	data    []byte
	stored  int
	written int
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{data: make([]byte, size)}
}

func (b *Buffer) Reset() {
	b.stored = 0
	b.written = 0
}

func (b *Buffer) Cap() int     { return len(b.data) }
func (b *Buffer) Len() int     { return b.stored }
func (b *Buffer) Written() int { return b.written }

// Bytes returns every stored byte, written or not.
func (b *Buffer) Bytes() []byte { return b.data[:b.stored] }

func (b *Buffer) Pending() []byte { return b.data[b.written:b.stored] }

func (b *Buffer) HasPending() bool { return b.written < b.stored }

// Fill replaces the buffer contents with one read from r. It returns 0 at
// end of stream.
func (b *Buffer) Fill(r io.Reader) (int, error) {
	b.Reset()
	n, err := readOnce(r, b.data)
	b.stored = n
	return n, err
}

// Append reads once into the free space after the stored bytes.
func (b *Buffer) Append(r io.Reader) (int, error) {
	if b.stored == len(b.data) {
		return 0, io.ErrShortBuffer
	}
	n, err := readOnce(r, b.data[b.stored:])
	b.stored += n
	return n, err
}

// Drain writes the pending bytes to w. A short write is fatal.
func (b *Buffer) Drain(w io.Writer) (int, error) {
	p := b.Pending()
	n, err := w.Write(p)
	if n < 0 {
		n = 0
	}
	switch {
	case errors.Is(err, io.ErrShortWrite), err == nil && n < len(p):
		b.written += n
		return n, ErrShortWrite
	case err != nil:
		b.written += n
		return n, ioError(err)
	}
	b.written = b.stored
	return n, nil
}

// Load replaces the buffer contents with p, all of it pending.
func (b *Buffer) Load(p []byte) error {
	if len(p) > len(b.data) {
		return ErrRequestTooLarge
	}
	b.Reset()
	b.stored = copy(b.data, p)
	return nil
}

// Skip marks the first n stored bytes as already written.
func (b *Buffer) Skip(n int) {
	if n > b.stored {
		n = b.stored
	}
	b.written = n
}

// readOnce follows read(2): a zero count means end of stream, whether the
// reader said io.EOF or not.
func readOnce(r io.Reader, p []byte) (int, error) {
	n, err := r.Read(p)
	if n > 0 {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, nil
	}
	return 0, ioError(err)
}
