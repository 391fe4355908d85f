package domain

import (
	"net"
	"strconv"
)

// Config is the validated result of command line and config file parsing.
type Config struct {
	TargetHost string
	TargetPort uint16

	ProxyHost string
	ProxyPort uint16

	Username    string
	Password    string
	// PasswordSet records that a password was supplied, even an empty one.
	PasswordSet bool

	InputFD  int
	OutputFD int

	// LenientHeaders also accepts "\n\n" as the end of the proxy's response
	// headers.
	LenientHeaders bool
	DNSServer      string
	Debug          bool
	ConfigFile     string
}

func (c Config) Target() Target {
	return Target{Host: c.TargetHost, Port: c.TargetPort}
}

// Credentials returns nil unless a username was given and a password was
// supplied. An empty password still produces credentials.
func (c Config) Credentials() *Credentials {
	if c.Username == "" || !c.PasswordSet {
		return nil
	}
	return &Credentials{Username: c.Username, Password: c.Password}
}

type Target struct {
	Host string
	Port uint16
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

type Credentials struct {
	Username string
	Password string
}

// HandshakeResult describes a successful CONNECT exchange.
type HandshakeResult struct {
	StatusLine string
	HeaderLen  int
	// Leftover is the number of bytes read past the headers. They are left
	// pending in the buffer.
	Leftover int
}

// Endpoint is one side of a tunnel: a descriptor to read from and one to
// write to. Both may be the same socket.
type Endpoint struct {
	In  int
	Out int
}
