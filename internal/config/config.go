// Package config builds a domain.Config from the command line and an
// optional config file. Command line values win over the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"proxycat/internal/domain"

	"github.com/alexflint/go-arg"
)

const defaultFile = ".proxycat"

var (
	// ErrUsage marks errors caused by bad arguments or config file contents.
	ErrUsage = errors.New("usage error")
	// ErrExit is returned after --help or --version has been printed.
	ErrExit = errors.New("exit requested")
)

type args struct {
	Host string `arg:"positional,required" help:"connect to this hostname"`
	Port int    `arg:"positional,required" help:"connect to this port number"`

	Username  string  `arg:"-u,--username" help:"username for proxy authentication"`
	Password  *string `arg:"-p,--password" help:"password for proxy authentication"`
	ProxyHost string  `arg:"-H,--proxy-host" help:"connect to this proxy server"`
	ProxyPort *int    `arg:"-P,--proxy-port" help:"connect to this port on the proxy server"`
	InputFD   *int    `arg:"-I,--input-fd" help:"use this file descriptor for input [default: 0]"`
	OutputFD  *int    `arg:"-O,--output-fd" help:"use this file descriptor for output [default: 1]"`
	Filename  string  `arg:"-f,--filename" help:"use this alternate configuration file"`

	LenientHeaders bool   `arg:"--lenient-headers" help:"also accept LF LF as the end of the proxy response headers"`
	DNSServer      string `arg:"--dns-server" help:"resolve the proxy host with this nameserver instead of resolv.conf"`
	Debug          bool   `arg:"-d,--debug" help:"log every relayed chunk to stderr"`

	version string `arg:"-"`
}

func (a *args) Version() string { return "proxycat " + a.version }

func (*args) Description() string {
	return "Relays stdin/stdout through an HTTP proxy using the CONNECT method."
}

// Loader parses the command line. Home is where the default config file
// is looked up; leave it empty to skip it.
type Loader struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Home    string
	Version string
}

func (l Loader) Load(argv []string) (domain.Config, error) {
	a := &args{version: l.Version}
	p, err := arg.NewParser(arg.Config{Program: "proxycat"}, a)
	if err != nil {
		return domain.Config{}, err
	}

	err = p.Parse(argv)
	switch {
	case errors.Is(err, arg.ErrHelp):
		p.WriteHelp(l.Stdout)
		return domain.Config{}, ErrExit
	case errors.Is(err, arg.ErrVersion):
		fmt.Fprintln(l.Stdout, a.Version())
		return domain.Config{}, ErrExit
	case err != nil:
		return domain.Config{}, l.usage(p, err)
	}

	cfg, err := l.build(a)
	if err != nil {
		return domain.Config{}, l.usage(p, err)
	}
	return cfg, nil
}

func (l Loader) usage(p *arg.Parser, err error) error {
	fmt.Fprintf(l.Stderr, "proxycat: %v\n", err)
	p.WriteUsage(l.Stderr)
	return fmt.Errorf("%w: %w", ErrUsage, err)
}

func (l Loader) build(a *args) (domain.Config, error) {
	cfg := domain.Config{
		TargetHost:     a.Host,
		Username:       a.Username,
		ProxyHost:      a.ProxyHost,
		LenientHeaders: a.LenientHeaders,
		DNSServer:      a.DNSServer,
		Debug:          a.Debug,
		InputFD:        -1,
		OutputFD:       -1,
	}

	if a.Password != nil {
		cfg.Password, cfg.PasswordSet = *a.Password, true
	}

	port, err := checkPort(a.Port)
	if err != nil {
		return cfg, fmt.Errorf("invalid target port: %w", err)
	}
	cfg.TargetPort = port

	if a.ProxyPort != nil {
		if cfg.ProxyPort, err = checkPort(*a.ProxyPort); err != nil {
			return cfg, fmt.Errorf("invalid proxy port: %w", err)
		}
	}
	if a.InputFD != nil {
		if cfg.InputFD, err = checkFD(*a.InputFD); err != nil {
			return cfg, fmt.Errorf("invalid input fd: %w", err)
		}
	}
	if a.OutputFD != nil {
		if cfg.OutputFD, err = checkFD(*a.OutputFD); err != nil {
			return cfg, fmt.Errorf("invalid output fd: %w", err)
		}
	}

	cfg.ConfigFile = a.Filename
	if cfg.ConfigFile == "" && l.Home != "" {
		path := filepath.Join(l.Home, defaultFile)
		if _, err := os.Stat(path); err == nil {
			cfg.ConfigFile = path
		}
	}
	if cfg.ConfigFile != "" {
		entries, err := readFile(cfg.ConfigFile)
		if err != nil {
			return cfg, err
		}
		if err := apply(&cfg, entries, cfg.ConfigFile); err != nil {
			return cfg, err
		}
	}

	if cfg.InputFD < 0 {
		cfg.InputFD = 0
	}
	if cfg.OutputFD < 0 {
		cfg.OutputFD = 1
	}

	if cfg.ProxyHost == "" {
		return cfg, errors.New("missing parameter: proxy hostname")
	}
	if cfg.ProxyPort == 0 {
		return cfg, errors.New("missing parameter: proxy port")
	}
	return cfg, nil
}

// apply fills in fields the command line left unset.
func apply(cfg *domain.Config, entries []entry, file string) error {
	for _, e := range entries {
		var err error
		switch e.key {
		case "username":
			if cfg.Username == "" {
				cfg.Username = e.value
			}
		case "password":
			if !cfg.PasswordSet {
				cfg.Password, cfg.PasswordSet = e.value, true
			}
		case "proxy-host":
			if cfg.ProxyHost == "" {
				cfg.ProxyHost = e.value
			}
		case "proxy-port":
			if cfg.ProxyPort == 0 {
				cfg.ProxyPort, err = parsePort(e.value)
			}
		case "input-fd":
			if cfg.InputFD < 0 {
				cfg.InputFD, err = parseFD(e.value)
			}
		case "output-fd":
			if cfg.OutputFD < 0 {
				cfg.OutputFD, err = parseFD(e.value)
			}
		case "dns-server":
			if cfg.DNSServer == "" {
				cfg.DNSServer = e.value
			}
		case "lenient-headers":
			if !cfg.LenientHeaders {
				cfg.LenientHeaders, err = strconv.ParseBool(e.value)
			}
		default:
			return fmt.Errorf("%s: invalid keyword: %s", file, e.key)
		}
		if err != nil {
			return fmt.Errorf("%s: line %d: invalid %s: %w", file, e.line, e.key, err)
		}
	}
	return nil
}

func checkPort(n int) (uint16, error) {
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("%d out of range 1-65535", n)
	}
	return uint16(n), nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return checkPort(n)
}

func checkFD(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return n, nil
}

func parseFD(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return checkFD(n)
}
