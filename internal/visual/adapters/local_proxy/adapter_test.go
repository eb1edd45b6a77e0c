package localproxy

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func quietRewriter(aliases map[string]string) *Rewriter {
	return New(aliases, "host.docker.internal", log.New(io.Discard))
}

func TestResolve_NonLocalhostPassesThrough(t *testing.T) {
	tests := []string{
		"https://app.example.com",
		"https://pr-42.preview.acme.dev/path?q=1",
		"http://10.0.0.5:8080",
	}

	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			got, cleanup, err := quietRewriter(nil).Resolve(target)
			defer cleanup()
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != target {
				t.Errorf("Resolve() = %q, want unchanged %q", got, target)
			}
		})
	}
}

func TestResolve_AliasRewrite(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		aliases map[string]string
		want    string
	}{
		{
			name:    "localhost with port",
			target:  "http://localhost:3000/app",
			aliases: map[string]string{"localhost": "host.docker.internal"},
			want:    "http://host.docker.internal:3000/app",
		},
		{
			name:    "loopback ip",
			target:  "http://127.0.0.1:8080",
			aliases: map[string]string{"127.0.0.1": "dev-box.internal"},
			want:    "http://dev-box.internal:8080",
		},
		{
			name:    "default port filled in",
			target:  "http://localhost",
			aliases: map[string]string{"localhost": "host.docker.internal"},
			want:    "http://host.docker.internal:80",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cleanup, err := quietRewriter(tt.aliases).Resolve(tt.target)
			defer cleanup()
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_ForwarderRelaysToLocalServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello from localhost")
	}))
	defer srv.Close()

	rewritten, cleanup, err := quietRewriter(nil).Resolve(srv.URL)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	defer cleanup()

	u, err := url.Parse(rewritten)
	if err != nil {
		t.Fatalf("parsing rewritten url %q: %v", rewritten, err)
	}
	if u.Hostname() != "host.docker.internal" {
		t.Errorf("rewritten host = %q, want proxy host", u.Hostname())
	}

	// The proxy-host name does not resolve here; dial the forwarder's
	// port on loopback to confirm it relays to the local server.
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", u.Port()))
	if err != nil {
		t.Fatalf("dialing forwarder: %v", err)
	}
	defer conn.Close()

	fmt.Fprintf(conn, "GET / HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n")
	reply, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("reading relayed response: %v", err)
	}
	if !strings.Contains(string(reply), "hello from localhost") {
		t.Errorf("relayed response missing body, got:\n%s", reply)
	}
}

func TestResolve_CleanupStopsForwarder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	rewritten, cleanup, err := quietRewriter(nil).Resolve(srv.URL)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	u, _ := url.Parse(rewritten)
	cleanup()

	if conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", u.Port())); err == nil {
		conn.Close()
		t.Error("forwarder still accepting connections after cleanup")
	}
}
