package utils

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// NewCustomResolver returns a resolver that sends every query to resolverAddr over UDP,
// or the system resolver when resolverAddr is nil or empty.
func NewCustomResolver(resolverAddr *string, timeout time.Duration) *net.Resolver {
	if resolverAddr == nil || *resolverAddr == "" {
		return net.DefaultResolver
	}
	server := *resolverAddr
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialer := net.Dialer{Timeout: timeout}
			return dialer.DialContext(ctx, "udp", server)
		},
	}
}

// SelectAddr picks one of the resolved addresses: the first IPv4 one, or the first IPv6
// one when preferV6 is set, falling back to whatever family is available.
func SelectAddr(addrs []netip.Addr, preferV6 bool) (netip.Addr, bool) {
	var first4, first6 netip.Addr
	for _, addr := range addrs {
		addr = addr.Unmap()
		if addr.Is4() && !first4.IsValid() {
			first4 = addr
		} else if addr.Is6() && !first6.IsValid() {
			first6 = addr
		}
	}
	if preferV6 && first6.IsValid() {
		return first6, true
	}
	if first4.IsValid() {
		return first4, true
	}
	if first6.IsValid() {
		return first6, true
	}
	return netip.Addr{}, false
}

// ResolveHost turns a literal address or a host name into one address to ping.
func ResolveHost(ctx context.Context, resolver *net.Resolver, host string, preferV6 bool, timeout time.Duration) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	addr, ok := SelectAddr(addrs, preferV6)
	if !ok {
		return netip.Addr{}, fmt.Errorf("no address found for %s", host)
	}
	return addr, nil
}
