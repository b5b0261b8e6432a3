package pinger

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"testing"
	"time"

	pkghoststats "example.com/multiping/pkg/hoststats"
	pkgmyprom "example.com/multiping/pkg/myprom"
	pkgraw "example.com/multiping/pkg/raw"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var (
	hostA = netip.MustParseAddr("192.0.2.1")
	hostB = netip.MustParseAddr("192.0.2.2")
	hostC = netip.MustParseAddr("2001:db8::3")
)

// fixedClock returns now, which tests move by hand.
type fixedClock struct {
	micros atomic.Int64
}

func newFixedClock(t time.Time) *fixedClock {
	c := new(fixedClock)
	c.micros.Store(t.UnixMicro())
	return c
}

func (c *fixedClock) Now() time.Time {
	return time.UnixMicro(c.micros.Load())
}

func (c *fixedClock) Advance(d time.Duration) {
	c.micros.Add(d.Microseconds())
}

// drain collects updates until the channel is closed.
func drain(t *testing.T, updates <-chan pkghoststats.StatusUpdate) []pkghoststats.StatusUpdate {
	t.Helper()
	var got []pkghoststats.StatusUpdate
	timeout := time.After(10 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return got
			}
			got = append(got, u)
		case <-timeout:
			t.Fatal("update channel was not closed")
			return got
		}
	}
}

// waitFor reads updates until pred matches one, returning everything read.
func waitFor(t *testing.T, updates <-chan pkghoststats.StatusUpdate, pred func(pkghoststats.StatusUpdate) bool) []pkghoststats.StatusUpdate {
	t.Helper()
	var got []pkghoststats.StatusUpdate
	timeout := time.After(10 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			require.True(t, ok, "update channel closed early")
			got = append(got, u)
			if pred(u) {
				return got
			}
		case <-timeout:
			t.Fatalf("expected update never arrived, got %v", got)
			return got
		}
	}
}

func TestNewEngineValidates(t *testing.T) {
	network := newFakeNetwork(false)

	_, err := NewEngine(Config{Interval: time.Second, Listen: network.listen})
	assert.Error(t, err)

	_, err = NewEngine(Config{Targets: []Target{{Name: "a", Addr: hostA}}, Listen: network.listen})
	assert.Error(t, err)

	_, err = NewEngine(Config{Targets: []Target{{Name: "bad"}}, Interval: time.Second, Listen: network.listen})
	assert.Error(t, err)
}

func TestNewEngineOpensOneSocketPerFamily(t *testing.T) {
	network := newFakeNetwork(false)
	engine, err := NewEngine(Config{
		Targets:  []Target{{Name: "a", Addr: hostA}, {Name: "b", Addr: hostB}},
		Interval: time.Second,
		Listen:   network.listen,
	})
	require.NoError(t, err)
	assert.NotNil(t, network.conn("udp4"))
	assert.Nil(t, network.conn("udp6"))

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
	assert.Equal(t, 1, network.conn("udp4").closeCount())
}

func TestNewEngineSocketFailureIsFatal(t *testing.T) {
	network := newFakeNetwork(false)
	network.failFor["udp6"] = os.NewSyscallError("socket", unix.EACCES)

	_, err := NewEngine(Config{
		Targets:  []Target{{Name: "a", Addr: hostA}, {Name: "c", Addr: hostC}},
		Interval: time.Second,
		Listen:   network.listen,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.EACCES)
	assert.Equal(t, 1, network.conn("udp4").closeCount(), "the v4 socket opened first must be released")
}

func TestEnginePingsEveryTarget(t *testing.T) {
	network := newFakeNetwork(true)
	targets := []Target{{Name: "a", Addr: hostA}, {Name: "b", Addr: hostB}, {Name: "c", Addr: hostC}}
	engine, err := NewEngine(Config{
		Targets:     targets,
		Interval:    5 * time.Millisecond,
		ReadTimeout: 20 * time.Millisecond,
		Listen:      network.listen,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg := pkghoststats.NewAggregator([]pkghoststats.HostInfo{
		pkghoststats.NewHostInfo("a", hostA),
		pkghoststats.NewHostInfo("b", hostB),
		pkghoststats.NewHostInfo("c", hostC),
	})
	go agg.Run(ctx, engine.Run(ctx))

	require.Eventually(t, func() bool {
		hosts, err := agg.Snapshot(ctx)
		if err != nil {
			return false
		}
		for _, h := range hosts {
			if h.Successful < 3 {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond)

	hosts, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	for _, h := range hosts {
		assert.GreaterOrEqual(t, h.PingsSent, uint32(1))
		assert.Nil(t, h.LastError)
		assert.GreaterOrEqual(t, *h.MinLatencyMicros, int64(0))
	}
}

func TestEngineShutdownClosesChannelAndSockets(t *testing.T) {
	network := newFakeNetwork(true)
	engine, err := NewEngine(Config{
		Targets:     []Target{{Name: "a", Addr: hostA}, {Name: "c", Addr: hostC}},
		Interval:    time.Hour,
		ReadTimeout: 20 * time.Millisecond,
		Listen:      network.listen,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	updates := engine.Run(ctx)
	waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return u.Type == pkghoststats.UpdateReceived })
	cancel()
	drain(t, updates)

	assert.Equal(t, 1, network.conn("udp4").closeCount())
	assert.Equal(t, 1, network.conn("udp6").closeCount())

	// a second Run does nothing
	_, open := <-engine.Run(context.Background())
	assert.False(t, open)
}

func TestEngineCorrelatesAndDrops(t *testing.T) {
	network := newFakeNetwork(false)
	clock := newFixedClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	engine, err := NewEngine(Config{
		Targets:     []Target{{Name: "a", Addr: hostA}, {Name: "b", Addr: hostB}},
		Interval:    time.Hour,
		ReadTimeout: 20 * time.Millisecond,
		Listen:      network.listen,
		Now:         clock.Now,
	})
	require.NoError(t, err)

	counterStore := pkgmyprom.NewCounterStore(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(pkgmyprom.WithCounterStore(context.Background(), counterStore))
	defer cancel()

	updates := engine.Run(ctx)
	got := waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return u.HostIndex == 1 })
	assert.Equal(t, []pkghoststats.StatusUpdate{pkghoststats.Sent(0), pkghoststats.Sent(1)}, got)

	conn := network.conn("udp4")
	assert.Equal(t, 2, conn.writtenCount())

	reply := pkgraw.EncodeEchoRequestV4(7, 0, pkgraw.BuildTimestampPayload(clock.Now()))
	reply[0] = 0
	clock.Advance(2500 * time.Microsecond)

	conn.deliver(reply, netip.MustParseAddr("198.51.100.9"))
	conn.deliver([]byte{250, 0, 0, 0, 0, 0, 0, 0}, hostA)
	conn.deliver(reply[:6], hostA)
	conn.deliver(reply, netip.MustParseAddr("::ffff:192.0.2.2"))

	got = waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return true })
	assert.Equal(t, []pkghoststats.StatusUpdate{pkghoststats.Received(1, 2500)}, got)

	assert.Equal(t, 1.0, testutil.ToFloat64(counterStore.NumCorrelationMisses.WithLabelValues("ipv4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counterStore.NumDecodeFailures.WithLabelValues("ipv4", "unknown_type")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counterStore.NumDecodeFailures.WithLabelValues("ipv4", "truncated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counterStore.NumRepliesReceived.WithLabelValues("ipv4")))
	assert.Equal(t, 2.0, testutil.ToFloat64(counterStore.NumPingsSent.WithLabelValues("ipv4")))
}

func TestEngineNegativeLatencySurfaces(t *testing.T) {
	network := newFakeNetwork(false)
	clock := newFixedClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	engine, err := NewEngine(Config{
		Targets:     []Target{{Name: "c", Addr: hostC}},
		Interval:    time.Hour,
		ReadTimeout: 20 * time.Millisecond,
		Listen:      network.listen,
		Now:         clock.Now,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := engine.Run(ctx)
	waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return u.Type == pkghoststats.UpdateSent })

	// the reply claims to have been sent a millisecond in the future
	reply := pkgraw.EncodeEchoRequestV6(1, 1, pkgraw.BuildTimestampPayload(clock.Now().Add(time.Millisecond)))
	reply[0] = 129
	network.conn("udp6").deliver(reply, hostC)

	got := waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return true })
	assert.Equal(t, pkghoststats.Received(0, -1000), got[0])
}

func TestEngineSendErrorBecomesFailed(t *testing.T) {
	network := newFakeNetwork(false)
	engine, err := NewEngine(Config{
		Targets:     []Target{{Name: "a", Addr: hostA}, {Name: "b", Addr: hostB}},
		Interval:    time.Hour,
		ReadTimeout: 20 * time.Millisecond,
		Listen:      network.listen,
	})
	require.NoError(t, err)

	network.conn("udp4").writeErr = func(dst net.Addr) error {
		if dst.(*net.UDPAddr).IP.Equal(hostB.AsSlice()) {
			return &net.OpError{Op: "write", Net: "udp", Err: os.NewSyscallError("sendto", unix.ENETUNREACH)}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates := engine.Run(ctx)
	got := waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return u.HostIndex == 1 })
	cancel()
	drain(t, updates)

	assert.Equal(t, []pkghoststats.StatusUpdate{
		pkghoststats.Sent(0),
		pkghoststats.Failed(1, pkghoststats.ErrorNetworkUnreachable),
	}, got)
}

// icmpErrorV4 builds an ICMPv4 error of the given type quoting a datagram sent to dst.
func icmpErrorV4(typ, code byte, dst netip.Addr) []byte {
	b := []byte{typ, code, 0, 0, 0, 0, 0, 0}
	quoted := make([]byte, 20)
	quoted[0] = 0x45
	quoted[3] = 84
	quoted[8] = 1
	quoted[9] = 1
	d := dst.As4()
	copy(quoted[16:20], d[:])
	return append(append(b, quoted...), 8, 0, 0, 0, 0, 1, 0, 0)
}

func TestEngineICMPErrorChargedToQuotedDestination(t *testing.T) {
	gateway := netip.MustParseAddr("10.0.0.1")
	target := netip.MustParseAddr("192.0.2.9")

	network := newFakeNetwork(false)
	engine, err := NewEngine(Config{
		Targets:     []Target{{Name: "gw", Addr: gateway}, {Name: "target", Addr: target}},
		Interval:    time.Hour,
		ReadTimeout: 20 * time.Millisecond,
		Listen:      network.listen,
	})
	require.NoError(t, err)

	counterStore := pkgmyprom.NewCounterStore(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(pkgmyprom.WithCounterStore(context.Background(), counterStore))
	defer cancel()
	updates := engine.Run(ctx)
	waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return u.HostIndex == 1 })

	conn := network.conn("udp4")
	// the gateway reports on the target, and on an address nobody monitors
	conn.deliver(icmpErrorV4(11, 0, target), gateway)
	conn.deliver(icmpErrorV4(3, 1, netip.MustParseAddr("198.51.100.7")), gateway)
	// no quoted header at all
	conn.deliver([]byte{3, 3, 0, 0, 0, 0, 0, 0, 0x45, 0}, gateway)
	conn.deliver(icmpErrorV4(3, 3, target), target)

	got := waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool {
		return u.Error == pkghoststats.ErrorICMPDestinationUnreachable
	})
	assert.Equal(t, []pkghoststats.StatusUpdate{
		pkghoststats.Failed(1, pkghoststats.ErrorICMPTimeExceeded),
		pkghoststats.Failed(1, pkghoststats.ErrorICMPDestinationUnreachable),
	}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(counterStore.NumCorrelationMisses.WithLabelValues("ipv4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counterStore.NumDecodeFailures.WithLabelValues("ipv4", "truncated")))
}

func TestEngineStrictChecksum(t *testing.T) {
	for _, strict := range []bool{false, true} {
		network := newFakeNetwork(false)
		clock := newFixedClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
		engine, err := NewEngine(Config{
			Targets:        []Target{{Name: "a", Addr: hostA}},
			Interval:       time.Hour,
			ReadTimeout:    20 * time.Millisecond,
			StrictChecksum: strict,
			Listen:         network.listen,
			Now:            clock.Now,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		updates := engine.Run(ctx)
		waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return u.Type == pkghoststats.UpdateSent })

		good := pkgraw.EncodeEchoRequestV4(1, 1, pkgraw.BuildTimestampPayload(clock.Now()))
		good[0] = 0
		corrupt := append([]byte(nil), good...)
		corrupt[2] ^= 0xff
		// fix the good one up after changing the type
		good[2], good[3] = 0, 0
		sum := pkgraw.Checksum(good)
		good[2], good[3] = byte(sum>>8), byte(sum)

		conn := network.conn("udp4")
		conn.deliver(corrupt, hostA)
		conn.deliver(good, hostA)

		got := waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return true })
		if strict {
			// the corrupted copy is dropped, the valid one counts
			assert.Equal(t, pkghoststats.Received(0, 0), got[0])
			select {
			case u := <-updates:
				t.Fatalf("unexpected update %v", u)
			case <-time.After(50 * time.Millisecond):
			}
		} else {
			assert.Equal(t, pkghoststats.Received(0, 0), got[0])
			second := waitFor(t, updates, func(u pkghoststats.StatusUpdate) bool { return true })
			assert.Equal(t, pkghoststats.Received(0, 0), second[0])
		}
		cancel()
		drain(t, updates)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want pkghoststats.ErrorKind
	}{
		{os.NewSyscallError("sendto", unix.ENETUNREACH), pkghoststats.ErrorNetworkUnreachable},
		{&net.OpError{Op: "write", Err: os.NewSyscallError("sendto", unix.EHOSTUNREACH)}, pkghoststats.ErrorHostUnreachable},
		{unix.EACCES, pkghoststats.ErrorPermissionDenied},
		{unix.EPERM, pkghoststats.ErrorPermissionDenied},
		{unix.ENOBUFS, pkghoststats.ErrorNoBufferSpace},
		{unix.EMSGSIZE, pkghoststats.ErrorMessageTooLong},
		{unix.ECONNREFUSED, pkghoststats.ErrorConnectionRefused},
		{timeoutError{}, pkghoststats.ErrorTimeout},
		{errors.New("boom"), pkghoststats.ErrorOther},
		{nil, pkghoststats.ErrorOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyError(tc.err), "%v", tc.err)
	}
}

func TestCorrelationIndex(t *testing.T) {
	index := newCorrelationIndex()
	index.Add(hostA, 0)
	index.Add(netip.MustParseAddr("fe80::1%eth0"), 1)
	index.Add(hostA, 2)
	assert.Equal(t, 2, index.Len())

	_, ok := index.Lookup(hostB)
	assert.False(t, ok)

	i, ok := index.Lookup(netip.MustParseAddr("fe80::1%eth1"))
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	// duplicate addresses are credited in turn
	var seen []int
	for n := 0; n < 4; n++ {
		i, ok := index.Lookup(netip.MustParseAddr("::ffff:192.0.2.1"))
		require.True(t, ok)
		seen = append(seen, i)
	}
	assert.Equal(t, []int{0, 2, 0, 2}, seen)
}
