package pinger

import (
	"encoding/binary"
	"net"
	"net/netip"
	"sync"
	"time"

	pkgraw "example.com/multiping/pkg/raw"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type datagram struct {
	b    []byte
	from net.Addr
}

// fakeConn stands in for a datagram ICMP socket. With echo set, every echo request
// written to it comes back as a reply from its destination, like a kernel would deliver.
type fakeConn struct {
	family pkgraw.Family
	echo   bool

	// when set, WriteTo fails with the returned error
	writeErr func(dst net.Addr) error

	inbox chan datagram

	mu       sync.Mutex
	deadline time.Time
	written  []datagram
	closed   chan struct{}
	nClose   int
}

func newFakeConn(family pkgraw.Family, echo bool) *fakeConn {
	return &fakeConn{
		family: family,
		echo:   echo,
		inbox:  make(chan datagram, 64),
		closed: make(chan struct{}),
	}
}

func udpAddr(addr netip.Addr) *net.UDPAddr {
	return &net.UDPAddr{IP: addr.AsSlice()}
}

func (c *fakeConn) deliver(b []byte, from netip.Addr) {
	c.inbox <- datagram{b: b, from: udpAddr(from)}
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case d := <-c.inbox:
		return copy(b, d.b), d.from, nil
	case <-timeout:
		return 0, nil, timeoutError{}
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteTo(b []byte, dst net.Addr) (int, error) {
	if c.writeErr != nil {
		if err := c.writeErr(dst); err != nil {
			return 0, err
		}
	}

	wb := append([]byte(nil), b...)
	c.mu.Lock()
	c.written = append(c.written, datagram{b: wb, from: dst})
	c.mu.Unlock()

	if c.echo {
		reply := append([]byte(nil), b...)
		if c.family == pkgraw.FamilyV4 {
			reply[0] = 0
			binary.BigEndian.PutUint16(reply[2:4], pkgraw.Checksum(reply))
		} else {
			reply[0] = 129
		}
		select {
		case c.inbox <- datagram{b: reply, from: dst}:
		default:
		}
	}
	return len(b), nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nClose++
	if c.nClose == 1 {
		close(c.closed)
	}
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nClose
}

func (c *fakeConn) writtenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

// fakeNetwork hands out one fakeConn per network name.
type fakeNetwork struct {
	mu      sync.Mutex
	conns   map[string]*fakeConn
	failFor map[string]error
	echo    bool
}

func newFakeNetwork(echo bool) *fakeNetwork {
	return &fakeNetwork{
		conns:   make(map[string]*fakeConn),
		failFor: make(map[string]error),
		echo:    echo,
	}
}

func (n *fakeNetwork) listen(network, address string) (pkgraw.PacketConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failFor[network]; err != nil {
		return nil, err
	}
	family := pkgraw.FamilyV4
	if network == "udp6" {
		family = pkgraw.FamilyV6
	}
	conn := newFakeConn(family, n.echo)
	n.conns[network] = conn
	return conn, nil
}

func (n *fakeNetwork) conn(network string) *fakeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[network]
}
