package epoll

import (
	"fmt"
	"proxycat/internal/domain"
	"slices"

	"golang.org/x/sys/unix"
)

// LinuxEventLoop is a level-triggered epoll set. Level triggering matters:
// handlers read at most one buffer per wakeup and rely on being woken again
// while data remains.
type LinuxEventLoop struct {
	epollFD int
	// always holds descriptors epoll refuses (regular files). They are
	// reported ready on every pass, as select(2) would.
	always []int
}

func New() (*LinuxEventLoop, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &LinuxEventLoop{epollFD: fd}, nil
}

func (l *LinuxEventLoop) Register(fd int, events domain.EventType) error {
	evt := &unix.EpollEvent{
		Events: uint32(events),
		Fd:     int32(fd),
	}
	err := unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_ADD, fd, evt)
	if err == unix.EPERM {
		l.always = append(l.always, fd)
		return nil
	}
	if err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

func (l *LinuxEventLoop) Unregister(fd int) error {
	if i := slices.Index(l.always, fd); i >= 0 {
		l.always = slices.Delete(l.always, i, i+1)
		return nil
	}
	return unix.EpollCtl(l.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
}

// Run dispatches readiness until a handler returns an error, and returns
// that error.
func (l *LinuxEventLoop) Run(handler domain.EventHandler) error {
	events := make([]unix.EpollEvent, 128)
	for {
		timeout := -1
		if len(l.always) > 0 {
			timeout = 0
		}

		n, err := unix.EpollWait(l.epollFD, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			evMask := events[i].Events

			var domainEv domain.EventType
			// HUP and ERR are surfaced as readable so the next read
			// reports EOF or the pending error.
			if evMask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0 {
				domainEv |= domain.EventRead
			}
			if evMask&unix.EPOLLOUT != 0 {
				domainEv |= domain.EventWrite
			}

			if err := handler.HandleEvent(fd, domainEv); err != nil {
				return err
			}
		}

		for _, fd := range slices.Clone(l.always) {
			if err := handler.HandleEvent(fd, domain.EventRead|domain.EventWrite); err != nil {
				return err
			}
		}
	}
}

func (l *LinuxEventLoop) Stop() {
	unix.Close(l.epollFD)
}
