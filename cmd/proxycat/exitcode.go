package main

import (
	"errors"
	"proxycat/internal/domain"
)

// Exit codes from sysexits.h.
const (
	exitOK          = 0
	exitUsage       = 64
	exitNoInput     = 66
	exitNoHost      = 68
	exitUnavailable = 69
	exitSoftware    = 70
	exitOSErr       = 71
	exitIOErr       = 74
	exitTempFail    = 75
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrPassword):
		return exitNoInput
	case errors.Is(err, domain.ErrHostLookup):
		return exitNoHost
	case errors.Is(err, domain.ErrProxyUnreachable):
		return exitTempFail
	case errors.Is(err, domain.ErrHandshake):
		return exitUnavailable
	case errors.Is(err, domain.ErrEventLoop):
		return exitSoftware
	case errors.Is(err, domain.ErrTunnel):
		return exitIOErr
	}
	return exitSoftware
}
