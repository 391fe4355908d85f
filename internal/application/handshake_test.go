package application

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"proxycat/internal/domain"

	"github.com/stretchr/testify/require"
)

// scriptedProxy returns one chunk per Read and records everything written.
type scriptedProxy struct {
	chunks  [][]byte
	written bytes.Buffer
	write   func(p []byte) (int, error)
	readErr error
}

func newScriptedProxy(chunks ...string) *scriptedProxy {
	p := &scriptedProxy{}
	for _, c := range chunks {
		p.chunks = append(p.chunks, []byte(c))
	}
	return p
}

func (p *scriptedProxy) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, io.EOF
	}
	n := copy(b, p.chunks[0])
	p.chunks[0] = p.chunks[0][n:]
	if len(p.chunks[0]) == 0 {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *scriptedProxy) Write(b []byte) (int, error) {
	if p.write != nil {
		return p.write(b)
	}
	return p.written.Write(b)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func target() domain.Target {
	return domain.Target{Host: "example.com", Port: 22}
}

func TestComposeRequestWithoutCredentials(t *testing.T) {
	req, err := composeRequest(domain.Target{Host: "example.com", Port: 443}, nil)
	require.NoError(t, err)
	require.Equal(t, "CONNECT example.com:443 HTTP/1.0\r\n\r\n", string(req))
}

func TestComposeRequestWithCredentials(t *testing.T) {
	req, err := composeRequest(target(), &domain.Credentials{Username: "bob", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t,
		"CONNECT example.com:22 HTTP/1.0\r\nProxy-Authorization: Basic Ym9iOnNlY3JldA==\r\n\r\n",
		string(req))
}

func TestComposeRequestIPv6Target(t *testing.T) {
	req, err := composeRequest(domain.Target{Host: "2001:db8::1", Port: 22}, nil)
	require.NoError(t, err)
	require.Equal(t, "CONNECT [2001:db8::1]:22 HTTP/1.0\r\n\r\n", string(req))
}

func TestHandshakeSuccess(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.1 200 Connection established\r\n\r\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	res, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(), nil)
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 Connection established", res.StatusLine)
	require.Zero(t, res.Leftover)
	require.False(t, buf.HasPending())
	require.Equal(t, "CONNECT example.com:22 HTTP/1.0\r\n\r\n", proxy.written.String())
}

func TestHandshakeSendsCredentials(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 200 OK\r\n\r\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	_, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(),
		&domain.Credentials{Username: "bob", Password: "secret"})
	require.NoError(t, err)
	require.Contains(t, proxy.written.String(), "Proxy-Authorization: Basic Ym9iOnNlY3JldA==\r\n")
}

func TestHandshakeRejected(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 407 Proxy Authentication Required\r\nProxy-Authenticate: Basic\r\n\r\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	_, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(), nil)
	var rejected *domain.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "HTTP/1.0 407 Proxy Authentication Required", rejected.StatusLine)
}

func TestHandshakeRejectsNonHTTP(t *testing.T) {
	proxy := newScriptedProxy("SSH-2.0-OpenSSH_9.6\r\n\r\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	_, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(), nil)
	var rejected *domain.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "SSH-2.0-OpenSSH_9.6", rejected.StatusLine)
}

func TestHandshakeKeepsLeftover(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.1 200 OK\r\n\r\nSSH-2.0-banner\r\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	res, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(), nil)
	require.NoError(t, err)
	require.Equal(t, len("HTTP/1.1 200 OK\r\n\r\n"), res.HeaderLen)
	require.Equal(t, len("SSH-2.0-banner\r\n"), res.Leftover)
	require.Equal(t, "SSH-2.0-banner\r\n", string(buf.Pending()))
}

func TestHandshakeSplitInvariance(t *testing.T) {
	response := "HTTP/1.1 200 Connection established\r\nVia: proxy\r\n\r\nleftover-bytes"
	wantHeader := strings.Index(response, "\r\n\r\n") + 4

	for _, lenient := range []bool{false, true} {
		// every split into two chunks, and all single-byte reads
		splits := [][]string{}
		for i := 1; i < len(response); i++ {
			splits = append(splits, []string{response[:i], response[i:]})
		}
		bytewise := []string{}
		for i := range response {
			bytewise = append(bytewise, response[i:i+1])
		}
		splits = append(splits, bytewise, []string{response})

		for _, chunks := range splits {
			proxy := newScriptedProxy(chunks...)
			buf := domain.NewBuffer(domain.DefaultBufferSize)

			res, err := NewHandshake(discardLogger(), lenient).Connect(proxy, buf, target(), nil)
			require.NoError(t, err, "chunks %q", chunks)
			require.Equal(t, wantHeader, res.HeaderLen, "chunks %q", chunks)

			// bytes the handshake did not read stay in the scripted proxy
			rest, _ := io.ReadAll(proxy)
			require.Equal(t, response[wantHeader:], string(buf.Pending())+string(rest), "chunks %q", chunks)
		}
	}
}

func TestHandshakeLenientTerminator(t *testing.T) {
	response := "HTTP/1.0 200 OK\nVia: x\n\nbody"
	for i := 1; i < len(response); i++ {
		proxy := newScriptedProxy(response[:i], response[i:])
		buf := domain.NewBuffer(domain.DefaultBufferSize)

		res, err := NewHandshake(discardLogger(), true).Connect(proxy, buf, target(), nil)
		require.NoError(t, err, "split at %d", i)
		require.Equal(t, "HTTP/1.0 200 OK", res.StatusLine)
		require.Equal(t, len("HTTP/1.0 200 OK\nVia: x\n\n"), res.HeaderLen)

		rest, _ := io.ReadAll(proxy)
		require.Equal(t, "body", string(buf.Pending())+string(rest))
	}
}

func TestHandshakeLenientPicksEarliestTerminator(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 200 OK\n\nxx\r\n\r\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	res, err := NewHandshake(discardLogger(), true).Connect(proxy, buf, target(), nil)
	require.NoError(t, err)
	require.Equal(t, len("HTTP/1.0 200 OK\n\n"), res.HeaderLen)
	require.Equal(t, "xx\r\n\r\n", string(buf.Pending()))
}

func TestHandshakeStrictIgnoresLFLF(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 200 OK\n\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	_, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(), nil)
	require.ErrorIs(t, err, domain.ErrPeerClosedDuringHeaders)
}

func TestHandshakeLenientRejectedLine(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 403 Forbidden\n\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	_, err := NewHandshake(discardLogger(), true).Connect(proxy, buf, target(), nil)
	var rejected *domain.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "HTTP/1.0 403 Forbidden", rejected.StatusLine)
}

func TestHandshakeRequestTooLarge(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 200 OK\r\n\r\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	host := strings.Repeat("a", 5000)
	_, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, domain.Target{Host: host, Port: 80}, nil)
	require.ErrorIs(t, err, domain.ErrRequestTooLarge)
	require.Zero(t, proxy.written.Len())
}

func TestHandshakeHeaderTooLarge(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 200 OK\r\n" + strings.Repeat("X-Pad: y\r\n", 20))
	buf := domain.NewBuffer(128)

	_, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(), nil)
	require.ErrorIs(t, err, domain.ErrHeaderTooLarge)
}

func TestHandshakeHeaderTooLargeTinyBuffer(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 200 OK\r\n\r\n")
	buf := domain.NewBuffer(3)

	// no request fits in three bytes, so read the response directly
	_, err := NewHandshake(discardLogger(), false).readHeaders(proxy, buf)
	require.ErrorIs(t, err, domain.ErrHeaderTooLarge)
}

func TestHandshakePeerClosedDuringHeaders(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 200 OK\r\n")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	_, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(), nil)
	require.ErrorIs(t, err, domain.ErrPeerClosedDuringHeaders)
}

func TestHandshakeReadError(t *testing.T) {
	proxy := newScriptedProxy("HTTP/1.0 2")
	proxy.readErr = errors.New("connection reset by peer")
	buf := domain.NewBuffer(domain.DefaultBufferSize)

	_, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(), nil)
	require.ErrorIs(t, err, domain.ErrIO)
	require.Contains(t, err.Error(), "connection reset by peer")
}

func TestHandshakeWriteFailures(t *testing.T) {
	cases := []struct {
		name  string
		write func(p []byte) (int, error)
		want  error
	}{
		{"peer closed", func(p []byte) (int, error) { return 0, nil }, domain.ErrPeerClosed},
		{"error", func(p []byte) (int, error) { return 0, errors.New("broken pipe") }, domain.ErrIO},
		{"short", func(p []byte) (int, error) { return len(p) - 1, nil }, domain.ErrShortWrite},
		{"short error", func(p []byte) (int, error) { return 1, io.ErrShortWrite }, domain.ErrShortWrite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proxy := newScriptedProxy("HTTP/1.0 200 OK\r\n\r\n")
			proxy.write = tc.write
			buf := domain.NewBuffer(domain.DefaultBufferSize)

			_, err := NewHandshake(discardLogger(), false).Connect(proxy, buf, target(), nil)
			require.ErrorIs(t, err, tc.want)
			// nothing was read after the failed write
			require.Len(t, proxy.chunks, 1)
		})
	}
}
