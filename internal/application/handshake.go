package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"proxycat/internal/domain"
	"proxycat/pkg/b64"
)

var (
	crlfcrlf = []byte("\r\n\r\n")
	lflf     = []byte("\n\n")
)

// Handshake performs the CONNECT exchange on an already connected proxy
// socket.
type Handshake struct {
	log *slog.Logger
	// Lenient accepts "\n\n" as a header terminator as well.
	Lenient bool
}

func NewHandshake(logger *slog.Logger, lenient bool) *Handshake {
	return &Handshake{log: logger, Lenient: lenient}
}

// Connect sends the CONNECT request and reads the response headers into buf.
// On success any bytes received after the headers are left pending in buf.
func (h *Handshake) Connect(conn io.ReadWriter, buf *domain.Buffer, target domain.Target, creds *domain.Credentials) (domain.HandshakeResult, error) {
	req, err := composeRequest(target, creds)
	if err != nil {
		return domain.HandshakeResult{}, err
	}
	if err := buf.Load(req); err != nil {
		return domain.HandshakeResult{}, err
	}

	if err := h.sendRequest(conn, buf); err != nil {
		return domain.HandshakeResult{}, err
	}
	h.log.Debug("CONNECT request sent", "target", target.String(), "auth", creds != nil)

	buf.Reset()
	headerLen, err := h.readHeaders(conn, buf)
	if err != nil {
		return domain.HandshakeResult{}, err
	}
	buf.Skip(headerLen)

	header := buf.Bytes()[:headerLen]
	line := h.statusLine(header)
	if !statusOK(header) {
		return domain.HandshakeResult{}, &domain.RejectedError{StatusLine: line}
	}

	res := domain.HandshakeResult{
		StatusLine: line,
		HeaderLen:  headerLen,
		Leftover:   buf.Len() - headerLen,
	}
	h.log.Debug("CONNECT response accepted", "status", line, "header_len", headerLen, "leftover", res.Leftover)
	return res, nil
}

func composeRequest(target domain.Target, creds *domain.Credentials) ([]byte, error) {
	var req bytes.Buffer
	fmt.Fprintf(&req, "CONNECT %s HTTP/1.0\r\n", target.String())
	if creds != nil {
		token, err := b64.EncodeString(creds.Username + ":" + creds.Password)
		if err != nil {
			return nil, fmt.Errorf("compose basic auth token: %w", err)
		}
		fmt.Fprintf(&req, "Proxy-Authorization: Basic %s\r\n", token)
	}
	req.WriteString("\r\n")
	return req.Bytes(), nil
}

func (h *Handshake) sendRequest(conn io.Writer, buf *domain.Buffer) error {
	want := buf.Len()
	n, err := conn.Write(buf.Pending())
	switch {
	case errors.Is(err, io.ErrShortWrite):
		return fmt.Errorf("send headers: %w", domain.ErrShortWrite)
	case err != nil:
		return fmt.Errorf("send headers: %w: %w", domain.ErrIO, err)
	case n == 0:
		return fmt.Errorf("send headers: %w", domain.ErrPeerClosed)
	case n != want:
		return fmt.Errorf("send headers: %w", domain.ErrShortWrite)
	}
	buf.Skip(n)
	return nil
}

// readHeaders appends reads to buf until a terminator shows up and returns
// the length of the header block including the terminator.
func (h *Handshake) readHeaders(conn io.Reader, buf *domain.Buffer) (int, error) {
	scanned := 0
	for {
		n, err := buf.Append(conn)
		if err != nil {
			return 0, fmt.Errorf("read headers: %w", err)
		}
		if n == 0 {
			return 0, fmt.Errorf("read headers: %w", domain.ErrPeerClosedDuringHeaders)
		}

		total := buf.Len()
		if total >= len(crlfcrlf) {
			if end, ok := h.findTerminator(buf.Bytes(), scanned); ok {
				return end, nil
			}
			scanned = total
		}

		if total == buf.Cap() {
			return 0, fmt.Errorf("read headers: %w", domain.ErrHeaderTooLarge)
		}
	}
}

// findTerminator searches data for the end of the header block. Only bytes
// from scanned on are new; each terminator looks back len-1 bytes so one
// split across reads is still found. It returns the offset just past the
// earliest terminator.
func (h *Handshake) findTerminator(data []byte, scanned int) (int, bool) {
	end, found := searchFrom(data, crlfcrlf, scanned)
	if h.Lenient {
		if e, ok := searchFrom(data, lflf, scanned); ok && (!found || e < end) {
			end, found = e, true
		}
	}
	return end, found
}

func searchFrom(data, sep []byte, scanned int) (int, bool) {
	start := scanned - (len(sep) - 1)
	if start < 0 {
		start = 0
	}
	i := bytes.Index(data[start:], sep)
	if i < 0 {
		return 0, false
	}
	return start + i + len(sep), true
}

func statusOK(header []byte) bool {
	return len(header) >= 12 &&
		bytes.HasPrefix(header, []byte("HTTP/1.")) &&
		bytes.Equal(header[9:12], []byte("200"))
}

// statusLine returns the first header line without its line ending.
func (h *Handshake) statusLine(header []byte) string {
	cut := "\r"
	if h.Lenient {
		cut = "\r\n"
	}
	if i := bytes.IndexAny(header, cut); i >= 0 {
		return string(header[:i])
	}
	return string(header)
}
