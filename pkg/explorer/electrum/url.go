package electrum

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrInvalidURL = errors.New("electrum url must be tcp://host:port or ssl://host:port")
)

// serverURL is a parsed electrum endpoint.
type serverURL struct {
	host string
	port string
	tls  bool
}

// parseURL validates and splits an electrum endpoint. Only the tcp:// and
// ssl:// schemes are accepted, the port is mandatory.
func parseURL(rawURL string) (*serverURL, error) {
	var hostport string
	var useTLS bool
	switch {
	case strings.HasPrefix(rawURL, "tcp://"):
		hostport = strings.TrimPrefix(rawURL, "tcp://")
	case strings.HasPrefix(rawURL, "ssl://"):
		hostport = strings.TrimPrefix(rawURL, "ssl://")
		useTLS = true
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil || len(host) == 0 || len(port) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return &serverURL{host: host, port: port, tls: useTLS}, nil
}

func (u *serverURL) addr() string {
	return net.JoinHostPort(u.host, u.port)
}
