package application

import (
	"errors"
	"fmt"
	"log/slog"
	"proxycat/internal/domain"
	"proxycat/internal/infrastructure/network"
)

var errEndOfStream = errors.New("end of stream")

// Tunnel relays bytes between a local and a remote endpoint until either
// side reaches end of stream. One buffer serves both directions; each
// ready descriptor gets a full read-then-write before the next is handled.
type Tunnel struct {
	log  *slog.Logger
	loop domain.EventLoop

	buf   *domain.Buffer
	pairs map[int]int // read fd -> write fd

	bytesIn  int64
	bytesOut int64
	local    domain.Endpoint
}

func NewTunnel(loop domain.EventLoop, logger *slog.Logger) *Tunnel {
	return &Tunnel{log: logger, loop: loop}
}

// Run drains any bytes already pending in buf to local.Out, then relays
// until end of stream. A clean end returns nil; any I/O failure is
// returned as is and ends the relay.
func (t *Tunnel) Run(buf *domain.Buffer, local, remote domain.Endpoint) error {
	t.buf = buf
	t.local = local
	t.pairs = map[int]int{
		local.In:  remote.Out,
		remote.In: local.Out,
	}

	if buf.HasPending() {
		n, err := buf.Drain(network.FD(local.Out))
		if err != nil {
			return fmt.Errorf("flush pending: %w", err)
		}
		t.bytesIn += int64(n)
		t.log.Debug("Flushed handshake leftover", "bytes", n, "dst_fd", local.Out)
	}

	for _, fd := range []int{local.In, remote.In} {
		fd := fd
		if err := t.loop.Register(fd, domain.EventRead); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEventLoop, err)
		}
		defer func() {
			if err := t.loop.Unregister(fd); err != nil {
				t.log.Debug("Unregistering descriptor", "fd", fd, "error", err)
			}
		}()
	}

	err := t.loop.Run(t)
	t.log.Info("Tunnel closed", "bytes_in", t.bytesIn, "bytes_out", t.bytesOut)
	switch {
	case errors.Is(err, errEndOfStream):
		return nil
	case errors.Is(err, domain.ErrIO), errors.Is(err, domain.ErrShortWrite):
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEventLoop, err)
}

func (t *Tunnel) HandleEvent(fd int, event domain.EventType) error {
	if event&domain.EventRead == 0 {
		return nil
	}
	dst, ok := t.pairs[fd]
	if !ok {
		return nil
	}

	n, err := t.buf.Fill(network.FD(fd))
	if err != nil {
		return fmt.Errorf("read fd %d: %w", fd, err)
	}
	if n == 0 {
		t.log.Debug("End of stream", "src_fd", fd)
		return errEndOfStream
	}

	if _, err := t.buf.Drain(network.FD(dst)); err != nil {
		return fmt.Errorf("write fd %d: %w", dst, err)
	}

	if fd == t.local.In {
		t.bytesOut += int64(n)
	} else {
		t.bytesIn += int64(n)
	}
	t.log.Debug("Data transfer", "bytes", n, "src_fd", fd, "dst_fd", dst)
	return nil
}
