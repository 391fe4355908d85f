package network

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	resolvConf = "/etc/resolv.conf"
	hostsFile  = "/etc/hosts"
)

var errNoRecords = errors.New("no A or AAAA records")

// DNSResolver looks up the proxy host in the hosts file first and then by
// querying nameservers directly.
type DNSResolver struct {
	log    *slog.Logger
	server string

	// HostsPath and ConfPath default to the system files.
	HostsPath string
	ConfPath  string

	servers []string
	// names expands a host into the candidate names to query.
	names  func(host string) []string
	client *dns.Client
}

// NewResolver uses server (host or host:port) when given, and the system's
// resolv.conf otherwise. Nothing is read until a name needs DNS.
func NewResolver(logger *slog.Logger, server string) *DNSResolver {
	if server != "" {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
	}
	return &DNSResolver{
		log:       logger,
		server:    server,
		HostsPath: hostsFile,
		ConfPath:  resolvConf,
		client:    &dns.Client{Net: "udp", Timeout: 5 * time.Second},
	}
}

func (r *DNSResolver) Resolve(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	if ip := r.lookupHosts(host); ip != nil {
		r.log.Debug("Resolved from hosts file", "domain", host, "ip", ip.String(), "file", r.HostsPath)
		return ip, nil
	}
	if host == "localhost" {
		return net.IPv4(127, 0, 0, 1), nil
	}

	if err := r.configure(); err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}

	var lastErr error = errNoRecords
	for _, name := range r.names(host) {
		for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
			ip, err := r.query(name, qtype)
			if err == nil {
				r.log.Debug("DNS Resolved", "domain", host, "ip", ip.String())
				return ip, nil
			}
			lastErr = err
		}
	}
	return nil, fmt.Errorf("%s: %w", host, lastErr)
}

// configure picks the nameservers on first use.
func (r *DNSResolver) configure() error {
	if r.names != nil {
		return nil
	}
	if r.server != "" {
		r.servers = []string{r.server}
		r.names = func(host string) []string { return []string{dns.Fqdn(host)} }
		return nil
	}

	conf, err := dns.ClientConfigFromFile(r.ConfPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", r.ConfPath, err)
	}
	var servers []string
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	if len(servers) == 0 {
		return fmt.Errorf("%s: no nameservers", r.ConfPath)
	}
	if conf.Timeout > 0 {
		r.client.Timeout = time.Duration(conf.Timeout) * time.Second
	}
	r.servers = servers
	r.names = conf.NameList
	return nil
}

// lookupHosts returns the first IPv4 address listed for host, or the first
// IPv6 one when there is no IPv4 entry. A missing file is not an error.
func (r *DNSResolver) lookupHosts(host string) net.IP {
	data, err := os.ReadFile(r.HostsPath)
	if err != nil {
		r.log.Debug("Skipping hosts file", "file", r.HostsPath, "error", err)
		return nil
	}

	want := strings.TrimSuffix(host, ".")
	var v6 net.IP
	for _, line := range strings.Split(string(data), "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}
		for _, name := range fields[1:] {
			if !strings.EqualFold(strings.TrimSuffix(name, "."), want) {
				continue
			}
			if ip.To4() != nil {
				return ip
			}
			if v6 == nil {
				v6 = ip
			}
		}
	}
	return v6
}

func (r *DNSResolver) query(name string, qtype uint16) (net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.RecursionDesired = true

	var lastErr error = errNoRecords
	for _, server := range r.servers {
		in, err := r.exchange(m, server)
		if err != nil {
			r.log.Debug("DNS query failed", "server", server, "name", name, "error", err)
			lastErr = err
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			lastErr = errors.New(dns.RcodeToString[in.Rcode])
			if in.Rcode == dns.RcodeNameError {
				return nil, lastErr
			}
			continue
		}
		for _, ans := range in.Answer {
			switch rr := ans.(type) {
			case *dns.A:
				return rr.A, nil
			case *dns.AAAA:
				return rr.AAAA, nil
			}
		}
		return nil, errNoRecords
	}
	return nil, lastErr
}

// exchange retries over TCP when the UDP answer was truncated.
func (r *DNSResolver) exchange(m *dns.Msg, server string) (*dns.Msg, error) {
	in, _, err := r.client.Exchange(m, server)
	if err != nil {
		return nil, err
	}
	if in.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: r.client.Timeout}
		in, _, err = tcp.Exchange(m, server)
	}
	return in, err
}
