package netproxy

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Error is a structured proxy-connection error. Kind names the
// taxonomy entry from the transport-errors family.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func errInvalidProxyURL(msg string) error {
	return &Error{Kind: "InvalidProxyUrl", Message: "invalid proxy URL: " + msg}
}

func errProxyConnectionFailed(err error) error {
	return &Error{Kind: "ProxyConnectionFailed", Message: "failed to connect to proxy: " + err.Error()}
}

func errConnectFailed(status int, message string) error {
	return &Error{Kind: "ConnectFailed", Message: fmt.Sprintf("HTTP CONNECT failed with status %d: %s", status, message)}
}

func errInvalidResponse(msg string) error {
	return &Error{Kind: "InvalidResponse", Message: "invalid HTTP response from proxy: " + msg}
}

func errInvalidURI(msg string) error {
	return &Error{Kind: "InvalidUri", Message: "invalid target URI: " + msg}
}

const defaultProxyPort = 3128

// parseProxyURL extracts (host, port) from a proxy URL. https://
// proxy URLs are rejected: this package doesn't speak TLS to the
// proxy itself, only CONNECT-tunnels through it.
func parseProxyURL(proxyURL string) (string, int, error) {
	u, err := url.Parse(proxyURL)
	if err != nil || u.Host == "" {
		return "", 0, errInvalidProxyURL(proxyURL)
	}
	if u.Scheme == "https" {
		return "", 0, errInvalidProxyURL(fmt.Sprintf(
			"https:// proxy URLs are not supported (proxy URL: %s). "+
				"Use http:// instead - the CONNECT tunnel will still encrypt "+
				"traffic to the final destination for https:// targets.", proxyURL))
	}

	host := u.Hostname()
	if host == "" {
		return "", 0, errInvalidProxyURL("missing host in " + proxyURL)
	}
	port := defaultProxyPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, errInvalidProxyURL("invalid port in " + proxyURL)
		}
		port = n
	}
	return host, port, nil
}

// DialOptions controls the TCP-level socket options applied to the
// connection (to the proxy, if one is used, otherwise to the target
// directly).
type DialOptions struct {
	NoDelay           bool
	KeepAlive         time.Duration
	KeepAliveInterval time.Duration
}

// DialWithConfig establishes a TCP connection to targetURL, tunneling
// through cfg's configured proxy via HTTP CONNECT when applicable, or
// connecting directly otherwise.
func DialWithConfig(targetURL *url.URL, cfg Config, opts DialOptions) (net.Conn, error) {
	scheme := targetURL.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := targetURL.Hostname()
	if host == "" {
		return nil, errInvalidURI("missing host")
	}
	port := targetURL.Port()
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	proxyURL := cfg.ProxyForURL(targetURL)
	if proxyURL == "" {
		conn, err := net.Dial("tcp", net.JoinHostPort(host, port))
		if err != nil {
			return nil, err
		}
		applySocketOptions(conn, opts)
		return conn, nil
	}

	proxyHost, proxyPort, err := parseProxyURL(proxyURL)
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(proxyHost, strconv.Itoa(proxyPort)))
	if err != nil {
		return nil, errProxyConnectionFailed(err)
	}
	applySocketOptions(conn, opts)

	targetPort, err := strconv.Atoi(port)
	if err != nil {
		conn.Close()
		return nil, errInvalidURI("invalid target port " + port)
	}
	if err := httpConnectTunnel(conn, host, targetPort); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// applySocketOptions applies nodelay and keepalive when conn is a
// *net.TCPConn. Go's stdlib net package exposes only a keepalive
// period, not the interval/retry-count granularity socket2 offers on
// the Rust side; KeepAliveInterval is accepted for API parity but
// currently unused.
func applySocketOptions(conn net.Conn, opts DialOptions) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(opts.NoDelay)
	if opts.KeepAlive > 0 {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(opts.KeepAlive)
	}
}

const (
	maxProxyHeaders    = 100
	maxProxyHeaderSize = 8192
)

// httpConnectTunnel sends an HTTP CONNECT request over conn and
// consumes the proxy's response. Uses "Connection: Keep-Alive" rather
// than the non-standard "Proxy-Connection" header.
func httpConnectTunnel(conn net.Conn, targetHost string, targetPort int) error {
	req := fmt.Sprintf("CONNECT %s:%d HTTP/1.1\r\nHost: %s:%d\r\nConnection: Keep-Alive\r\n\r\n",
		targetHost, targetPort, targetHost, targetPort)
	if _, err := conn.Write([]byte(req)); err != nil {
		return errProxyConnectionFailed(err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return errInvalidResponse("unexpected EOF while reading status line")
	}
	statusLine = strings.TrimSpace(statusLine)

	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return errInvalidResponse("invalid status line: " + statusLine)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return errInvalidResponse("invalid status code: " + parts[1])
	}

	headerCount := 0
	for {
		line, err := readLimitedLine(reader, maxProxyHeaderSize)
		if err != nil {
			return errInvalidResponse("unexpected EOF while reading headers")
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		headerCount++
		if headerCount > maxProxyHeaders {
			return errInvalidResponse("too many headers in proxy response")
		}
	}

	if status < 200 || status >= 300 {
		message := ""
		if len(parts) > 2 {
			message = parts[2]
		}
		return errConnectFailed(status, message)
	}
	return nil
}

func readLimitedLine(r *bufio.Reader, limit int) (string, error) {
	var b strings.Builder
	for b.Len() < limit {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
		if c == '\n' {
			return b.String(), nil
		}
	}
	return "", &Error{Kind: "InvalidResponse", Message: "invalid HTTP response from proxy: header line too long"}
}
