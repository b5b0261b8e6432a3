package pinger

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log"
	"net/netip"
	"sync"
	"time"

	pkghoststats "example.com/multiping/pkg/hoststats"
	pkgraw "example.com/multiping/pkg/raw"
)

const DefaultReadTimeout = 500 * time.Millisecond

// Target is one monitored host; its position in Config.Targets is the host index
// carried by every StatusUpdate about it.
type Target struct {
	Name string
	Addr netip.Addr
}

type Config struct {
	Targets  []Target
	Interval time.Duration

	// bounds every socket read so cancellation is noticed, DefaultReadTimeout if zero
	ReadTimeout time.Duration

	// drop ICMPv4 datagrams whose checksum does not match
	StrictChecksum bool

	// defaults to pkgraw.ListenUnprivileged
	Listen pkgraw.ListenFunc

	// defaults to time.Now
	Now func() time.Time
}

// Engine pings every target once per interval and reports what happens as a stream
// of StatusUpdates. It owns one ICMP socket per address family in use.
type Engine struct {
	config     Config
	sockets    map[pkgraw.Family]*pkgraw.ICMPSocket
	indices    map[pkgraw.Family]*correlationIndex
	identifier uint16
	now        func() time.Time
	runOnce    sync.Once
}

func familyOf(addr netip.Addr) pkgraw.Family {
	if addr.Unmap().Is4() {
		return pkgraw.FamilyV4
	}
	return pkgraw.FamilyV6
}

func randomIdentifier() uint16 {
	var b [2]byte
	if _, err := cryptoRand.Read(b[:]); err != nil {
		log.Printf("failed to generate random identifier: %v", err)
		return uint16(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint16(b[:])
}

// NewEngine validates cfg and opens the sockets it needs. A socket that can't be opened
// is fatal: whatever was already opened is closed again and the error returned.
func NewEngine(cfg Config) (*Engine, error) {
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("at least one target is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Listen == nil {
		cfg.Listen = pkgraw.ListenUnprivileged
	}

	engine := &Engine{
		config:     cfg,
		sockets:    make(map[pkgraw.Family]*pkgraw.ICMPSocket),
		indices:    make(map[pkgraw.Family]*correlationIndex),
		identifier: randomIdentifier(),
		now:        cfg.Now,
	}
	if engine.now == nil {
		engine.now = time.Now
	}

	for i, target := range cfg.Targets {
		if !target.Addr.IsValid() {
			return nil, fmt.Errorf("target %d (%s) has no address", i, target.Name)
		}
		family := familyOf(target.Addr)
		if _, ok := engine.indices[family]; !ok {
			engine.indices[family] = newCorrelationIndex()
		}
		engine.indices[family].Add(target.Addr, i)
	}

	for _, family := range []pkgraw.Family{pkgraw.FamilyV4, pkgraw.FamilyV6} {
		if _, needed := engine.indices[family]; !needed {
			continue
		}
		sock, err := pkgraw.ListenICMP(family, cfg.Listen, cfg.ReadTimeout)
		if err != nil {
			engine.Close()
			return nil, err
		}
		engine.sockets[family] = sock
	}

	return engine, nil
}

// Close releases the sockets. Run does it by itself when it finishes, so Close is only
// needed for an engine that is never run.
func (engine *Engine) Close() error {
	var firstErr error
	for family, sock := range engine.sockets {
		if err := sock.Close(); err != nil {
			log.Printf("failed to close %s socket: %v", family, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run starts the sender and one receiver per socket. The returned channel is closed,
// and the sockets released, once ctx is done and all of them have returned.
// Run must be called at most once.
func (engine *Engine) Run(ctx context.Context) <-chan pkghoststats.StatusUpdate {
	updates := make(chan pkghoststats.StatusUpdate, 2*len(engine.config.Targets)+1)

	started := false
	engine.runOnce.Do(func() { started = true })
	if !started {
		log.Printf("engine is already running")
		close(updates)
		return updates
	}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.runSender(ctx, updates)
	}()

	for family, sock := range engine.sockets {
		wg.Add(1)
		go func(sock *pkgraw.ICMPSocket, index *correlationIndex) {
			defer wg.Done()
			engine.runReceiver(ctx, sock, index, updates)
		}(sock, engine.indices[family])
	}

	go func() {
		wg.Wait()
		engine.Close()
		close(updates)
	}()

	return updates
}

// emit hands update to the consumer unless ctx is done first.
func emit(ctx context.Context, updates chan<- pkghoststats.StatusUpdate, update pkghoststats.StatusUpdate) bool {
	select {
	case updates <- update:
		return true
	case <-ctx.Done():
		return false
	}
}
