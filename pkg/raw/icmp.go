package raw

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/net/icmp"
)

// PacketConn is the part of *icmp.PacketConn the pinger needs.
type PacketConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, dst net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// ListenFunc opens a PacketConn, icmp.ListenPacket style.
type ListenFunc func(network, address string) (PacketConn, error)

// ListenUnprivileged opens a kernel managed datagram ICMP endpoint ("udp4" or "udp6"),
// which needs no raw socket privilege. The kernel picks the echo identifier and
// fills in checksums.
func ListenUnprivileged(network, address string) (PacketConn, error) {
	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

var listenArgs = map[Family][2]string{
	FamilyV4: {"udp4", "0.0.0.0"},
	FamilyV6: {"udp6", "::"},
}

// ICMPSocket is one open ICMP endpoint shared by the sending and the receiving goroutine.
// It is opened once and released by Close, which is safe to call more than once.
type ICMPSocket struct {
	family      Family
	conn        PacketConn
	readTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

// ListenICMP opens the socket for family. A zero readTimeout makes Receive wait forever.
func ListenICMP(family Family, listen ListenFunc, readTimeout time.Duration) (*ICMPSocket, error) {
	args, ok := listenArgs[family]
	if !ok {
		return nil, fmt.Errorf("unsupported address family: %d", int(family))
	}
	if listen == nil {
		listen = ListenUnprivileged
	}
	conn, err := listen(args[0], args[1])
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s icmp datagram socket: %w", family, err)
	}
	return &ICMPSocket{
		family:      family,
		conn:        conn,
		readTimeout: readTimeout,
	}, nil
}

func (sock *ICMPSocket) Family() Family {
	return sock.family
}

// Send writes one ICMP message to dst.
func (sock *ICMPSocket) Send(ctx context.Context, dst netip.Addr, wb []byte) (int, error) {
	udpDst := &net.UDPAddr{IP: dst.AsSlice(), Zone: dst.Zone()}
	nBytes, err := sock.conn.WriteTo(wb, udpDst)
	if err != nil {
		return nBytes, err
	}
	markAsSentBytes(ctx, sock.family, nBytes)
	return nBytes, nil
}

// Receive reads one datagram into rb and reports who sent it. With a read timeout set,
// it returns an error satisfying IsTimeout when nothing arrived in time.
func (sock *ICMPSocket) Receive(ctx context.Context, rb []byte) (int, netip.Addr, error) {
	if sock.readTimeout > 0 {
		if err := sock.conn.SetReadDeadline(time.Now().Add(sock.readTimeout)); err != nil {
			return 0, netip.Addr{}, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}
	nBytes, peerAddr, err := sock.conn.ReadFrom(rb)
	if err != nil {
		return 0, netip.Addr{}, err
	}
	markAsReceivedBytes(ctx, sock.family, nBytes)

	src, ok := AddrFromNet(peerAddr)
	if !ok {
		return nBytes, netip.Addr{}, fmt.Errorf("unexpected peer address %v (%T)", peerAddr, peerAddr)
	}
	return nBytes, src, nil
}

func (sock *ICMPSocket) Close() error {
	sock.closeOnce.Do(func() {
		sock.closeErr = sock.conn.Close()
	})
	return sock.closeErr
}

// AddrFromNet extracts the IP of a peer address, with IPv4-mapped IPv6 addresses unmapped.
func AddrFromNet(addr net.Addr) (netip.Addr, bool) {
	var ip net.IP
	var zone string
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip, zone = a.IP, a.Zone
	case *net.IPAddr:
		ip, zone = a.IP, a.Zone
	default:
		return netip.Addr{}, false
	}
	parsed, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	parsed = parsed.Unmap()
	if zone != "" && parsed.Is6() {
		parsed = parsed.WithZone(zone)
	}
	return parsed, true
}

// IsTimeout reports whether err is a read deadline expiring.
func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
