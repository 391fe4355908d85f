package domain

import "net"

type EventType uint32

const (
	EventRead  EventType = 0x1
	EventWrite EventType = 0x4 // EPOLLOUT
)

type EventHandler interface {
	HandleEvent(fd int, event EventType) error
}

// EventLoop waits on a set of descriptors. Run returns the first error a
// handler reports, which is how callers stop it.
type EventLoop interface {
	Register(fd int, events EventType) error
	Unregister(fd int) error
	Run(handler EventHandler) error
	Stop()
}

type Resolver interface {
	Resolve(host string) (net.IP, error)
}

// Dialer returns a connected, blocking stream socket.
type Dialer interface {
	Dial(ip net.IP, port uint16) (int, error)
}

type PasswordPrompter interface {
	Prompt(prompt string) (string, error)
}
