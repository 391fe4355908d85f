package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"proxycat/internal/application"
	"proxycat/internal/config"
	"proxycat/internal/domain"
	"proxycat/internal/infrastructure/epoll"
	"proxycat/internal/infrastructure/network"
	"proxycat/internal/infrastructure/terminal"
	"proxycat/pkg/logger"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	loader := config.Loader{
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Home:    os.Getenv("HOME"),
		Version: version,
	}
	cfg, err := loader.Load(argv)
	if errors.Is(err, config.ErrExit) {
		return exitOK
	}
	if err != nil {
		return exitUsage
	}

	log := logger.Setup(cfg.Debug)
	log.Debug("Configuration loaded", "target", cfg.Target().String(), "proxy", cfg.ProxyHost, "config_file", cfg.ConfigFile)

	eventLoop, err := epoll.New()
	if err != nil {
		log.Error("Failed to create event loop", "error", err)
		return exitOSErr
	}
	defer eventLoop.Stop()

	resolver := network.NewResolver(log, cfg.DNSServer)
	proxy := application.NewProxyService(eventLoop, log, cfg, resolver, network.TCPDialer{}, terminal.TTYPrompter{})
	if err := proxy.Start(); err != nil {
		report(log, err)
		return exitCode(err)
	}
	return exitOK
}

// report prints the proxy's own status line for rejections, since that is
// what tells the operator why the CONNECT failed.
func report(log *slog.Logger, err error) {
	var rejected *domain.RejectedError
	if errors.As(err, &rejected) {
		fmt.Fprintf(os.Stderr, "proxycat: proxy connect failed: %s\n", rejected.StatusLine)
		return
	}
	log.Error("Proxy stopped", "error", err)
}
