package network

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// TCPDialer opens blocking TCP sockets. The tunnel relies on blocking
// descriptors: a short write is treated as fatal.
type TCPDialer struct{}

func (TCPDialer) Dial(ip net.IP, port uint16) (int, error) {
	return DialTCP(ip, port)
}

func DialTCP(ip net.IP, port uint16) (int, error) {
	family, sa, err := sockaddr(ip, port)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := connect(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func sockaddr(ip net.IP, port uint16) (int, unix.Sockaddr, error) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: int(port)}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa, nil
	}
	if ip16 := ip.To16(); ip16 != nil {
		sa := &unix.SockaddrInet6{Port: int(port)}
		copy(sa.Addr[:], ip16)
		return unix.AF_INET6, sa, nil
	}
	return 0, nil, fmt.Errorf("invalid address %q", ip)
}

// connect finishes a blocking connect. A signal can interrupt it, after
// which the kernel keeps connecting in the background; wait for the socket
// to become writable and read the result from SO_ERROR.
func connect(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINTR {
		return fmt.Errorf("connect: %w", err)
	}

	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		break
	}

	val, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt: %w", err)
	}
	if val != 0 {
		return fmt.Errorf("connect: %w", unix.Errno(val))
	}
	return nil
}

func Close(fd int) error {
	return unix.Close(fd)
}
