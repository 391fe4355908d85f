package network

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// FD exposes a raw descriptor as an io.Reader and io.Writer. Each call is
// one read(2) or write(2); nothing is buffered.
type FD int

func (fd FD) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(int(fd), p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("read", err)
		}
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write performs a single write(2). A partial write, or EAGAIN on a
// descriptor someone left non-blocking, comes back as io.ErrShortWrite.
// A zero count with no error is returned as is so callers can treat it as
// the peer going away.
func (fd FD) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(int(fd), p)
		if n < 0 {
			n = 0
		}
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return n, io.ErrShortWrite
		case err != nil:
			return n, os.NewSyscallError("write", err)
		case n == 0:
			return 0, nil
		case n < len(p):
			return n, io.ErrShortWrite
		}
		return n, nil
	}
}

func (fd FD) Close() error {
	return unix.Close(int(fd))
}
