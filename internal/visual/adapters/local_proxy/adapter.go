// Package localproxy makes localhost-only target URLs reachable from
// the executor, which may run in a different network namespace.
package localproxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"
)

// Rewriter resolves loopback URLs either through configured host
// aliases or by starting a forwarding proxy for the run's duration.
type Rewriter struct {
	aliases   map[string]string
	proxyHost string
	log       *log.Logger
}

// New creates a Rewriter. proxyHost is the name under which this
// machine is reachable from the executor's network (used when no alias
// matches and a forwarder is started).
func New(aliases map[string]string, proxyHost string, logger *log.Logger) *Rewriter {
	return &Rewriter{aliases: aliases, proxyHost: proxyHost, log: logger}
}

// Resolve returns the URL the executor should target and a cleanup
// func. Non-loopback URLs pass through untouched. Loopback URLs are
// rewritten via an alias when one is configured; otherwise a background
// TCP forwarder bound on all interfaces relays to the local server.
func (r *Rewriter) Resolve(target string) (string, func(), error) {
	noop := func() {}

	u, err := url.Parse(target)
	if err != nil {
		return "", noop, fmt.Errorf("parsing target url: %w", err)
	}

	host := u.Hostname()
	if !isLoopback(host) {
		return target, noop, nil
	}

	port := u.Port()
	if port == "" {
		port = defaultPort(u.Scheme)
	}

	if alias, ok := r.aliases[host]; ok {
		u.Host = net.JoinHostPort(alias, port)
		r.log.Info("rewrote localhost target via alias", "from", target, "to", u.String())
		return u.String(), noop, nil
	}

	fwd, err := newForwarder(net.JoinHostPort(host, port), r.log)
	if err != nil {
		return "", noop, fmt.Errorf("starting local forwarding proxy: %w", err)
	}

	u.Host = net.JoinHostPort(r.proxyHost, fwd.port())
	r.log.Info("forwarding proxy started for localhost target",
		"from", target, "to", u.String(), "listen", fwd.addr())
	return u.String(), fwd.close, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// forwarder relays TCP connections from all interfaces to a loopback
// address for the duration of the run.
type forwarder struct {
	listener net.Listener
	target   string
	log      *log.Logger

	closeOnce sync.Once
}

func newForwarder(target string, logger *log.Logger) (*forwarder, error) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, err
	}

	f := &forwarder{listener: listener, target: target, log: logger}
	go f.serve()
	return f, nil
}

func (f *forwarder) serve() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				f.log.Debug("proxy accept failed", "err", err)
			}
			return
		}
		go f.relay(conn)
	}
}

func (f *forwarder) relay(client net.Conn) {
	//nolint:errcheck // Connection teardown, errors not actionable
	defer func() { _ = client.Close() }()

	upstream, err := net.Dial("tcp", f.target)
	if err != nil {
		f.log.Debug("proxy dial failed", "target", f.target, "err", err)
		return
	}
	//nolint:errcheck // Connection teardown, errors not actionable
	defer func() { _ = upstream.Close() }()

	// Returning closes both conns, which unblocks the other direction.
	done := make(chan struct{}, 2)
	go func() {
		//nolint:errcheck // Pipe teardown ends the copy
		_, _ = io.Copy(upstream, client)
		done <- struct{}{}
	}()
	go func() {
		//nolint:errcheck // Pipe teardown ends the copy
		_, _ = io.Copy(client, upstream)
		done <- struct{}{}
	}()
	<-done
}

func (f *forwarder) addr() string {
	return f.listener.Addr().String()
}

func (f *forwarder) port() string {
	_, port, _ := net.SplitHostPort(f.listener.Addr().String())
	return port
}

func (f *forwarder) close() {
	f.closeOnce.Do(func() {
		//nolint:errcheck // Listener shutdown, error not actionable
		_ = f.listener.Close()
	})
}
