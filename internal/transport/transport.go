// Package transport builds the shared HTTP transport the collector and
// service monitor use for outbound polling: a DNS-caching resolver behind
// a standard http.Transport, so a transient DNS outage does not translate
// into a lookup on every single poll.
package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog"
)

// Shared wraps an *http.Transport with a background-refreshed DNS cache.
type Shared struct {
	Transport *http.Transport
	resolver  *dnscache.Resolver
	stop      chan struct{}
}

// New builds a transport suitable for many short-lived polling requests:
// connection reuse across polls, a DNS cache refreshed on an interval, and
// conservative per-host connection limits so one unreachable target can't
// exhaust the pool other targets need.
func New(refreshInterval time.Duration, logger zerolog.Logger) *Shared {
	resolver := &dnscache.Resolver{}

	dialer := &net.Dialer{Timeout: 10 * time.Second}

	s := &Shared{
		resolver: resolver,
		stop:     make(chan struct{}),
	}

	s.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialWithCache(ctx, dialer, resolver, network, addr)
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}
	go s.refreshLoop(refreshInterval, logger)

	return s
}

func dialWithCache(ctx context.Context, dialer *net.Dialer, resolver *dnscache.Resolver, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return dialer.DialContext(ctx, network, addr)
	}

	ips, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}

	var conn net.Conn
	for _, ip := range ips {
		conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
	}
	return nil, err
}

func (s *Shared) refreshLoop(interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.resolver.Refresh(true)
			logger.Debug().Msg("dns cache refreshed")
		case <-s.stop:
			return
		}
	}
}

// Close stops the background refresh loop and idles out open connections.
func (s *Shared) Close() {
	close(s.stop)
	s.Transport.CloseIdleConnections()
}

// Client builds an *http.Client sharing this transport with the given
// per-request timeout.
func (s *Shared) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: s.Transport, Timeout: timeout}
}
