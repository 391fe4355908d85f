package application

import (
	"fmt"
	"log/slog"
	"proxycat/internal/domain"
	"proxycat/internal/infrastructure/network"
)

const passwordPrompt = "Proxy password: "

// ProxyService runs one tunnel: connect to the proxy, send CONNECT, relay.
type ProxyService struct {
	log      *slog.Logger
	loop     domain.EventLoop
	cfg      domain.Config
	resolver domain.Resolver
	dialer   domain.Dialer
	prompter domain.PasswordPrompter
}

func NewProxyService(loop domain.EventLoop, logger *slog.Logger, cfg domain.Config,
	resolver domain.Resolver, dialer domain.Dialer, prompter domain.PasswordPrompter) *ProxyService {
	return &ProxyService{
		log:      logger,
		loop:     loop,
		cfg:      cfg,
		resolver: resolver,
		dialer:   dialer,
		prompter: prompter,
	}
}

func (s *ProxyService) Start() error {
	if err := s.askPassword(); err != nil {
		return err
	}

	ip, err := s.resolver.Resolve(s.cfg.ProxyHost)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrHostLookup, err)
	}

	s.log.Info("Connecting to proxy", "proxy", s.cfg.ProxyHost, "ip", ip.String(), "port", s.cfg.ProxyPort)
	fd, err := s.dialer.Dial(ip, s.cfg.ProxyPort)
	if err != nil {
		return fmt.Errorf("%w: %s:%d: %w", domain.ErrProxyUnreachable, s.cfg.ProxyHost, s.cfg.ProxyPort, err)
	}
	defer func() {
		if err := network.Close(fd); err != nil {
			s.log.Debug("Closing proxy socket", "fd", fd, "error", err)
		}
	}()

	buf := domain.NewBuffer(domain.DefaultBufferSize)
	hs := NewHandshake(s.log, s.cfg.LenientHeaders)
	res, err := hs.Connect(network.FD(fd), buf, s.cfg.Target(), s.cfg.Credentials())
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrHandshake, err)
	}
	s.log.Info("Tunnel established", "target", s.cfg.Target().String(), "status", res.StatusLine, "leftover", res.Leftover)

	tunnel := NewTunnel(s.loop, s.log)
	err = tunnel.Run(buf,
		domain.Endpoint{In: s.cfg.InputFD, Out: s.cfg.OutputFD},
		domain.Endpoint{In: fd, Out: fd})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTunnel, err)
	}
	return nil
}

// askPassword fills in the password when only a username was configured.
func (s *ProxyService) askPassword() error {
	if s.cfg.Username == "" || s.cfg.PasswordSet {
		return nil
	}
	if s.prompter == nil {
		return fmt.Errorf("%w: no prompt available", domain.ErrPassword)
	}
	pw, err := s.prompter.Prompt(passwordPrompt)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPassword, err)
	}
	s.cfg.Password = pw
	s.cfg.PasswordSet = true
	return nil
}
