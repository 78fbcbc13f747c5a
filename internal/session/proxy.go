package session

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// proxyTransport builds an *http.Transport that dials every connection
// through a SOCKS5 proxy at addr (e.g. "127.0.0.1:9050" for a local Tor
// daemon).
func proxyTransport(addr string) (*http.Transport, error) {
	dialer, err := proxy.SOCKS5("tcp", addr, nil, &net.Dialer{Timeout: DefaultConnectTimeout})
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
	}

	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not support context cancellation")
	}

	return &http.Transport{
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			return contextDialer.DialContext(ctx, network, address)
		},
		IdleConnTimeout: 2 * time.Minute,
	}, nil
}
