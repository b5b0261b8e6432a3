package pinger

import (
	"context"
	"errors"
	"log"
	"net"
	"net/netip"

	pkghoststats "example.com/multiping/pkg/hoststats"
	pkgmyprom "example.com/multiping/pkg/myprom"
	pkgraw "example.com/multiping/pkg/raw"
)

func (engine *Engine) runReceiver(ctx context.Context, sock *pkgraw.ICMPSocket, index *correlationIndex, updates chan<- pkghoststats.StatusUpdate) {
	family := sock.Family()
	log.Printf("receiver goroutine for %s (%d addresses) is started", family, index.Len())
	defer log.Printf("receiver goroutine for %s is exitting", family)

	counterStore := pkgmyprom.FromContext(ctx)
	rb := make([]byte, pkgraw.ReceiveBufferSize())

	for {
		if ctx.Err() != nil {
			return
		}

		nBytes, src, err := sock.Receive(ctx, rb)
		if err != nil {
			if pkgraw.IsTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				log.Printf("%s socket is closed: %v", family, err)
				return
			}
			log.Printf("failed to read from %s socket: %v", family, err)
			if counterStore != nil {
				counterStore.NumReadErrors.WithLabelValues(family.String()).Inc()
			}
			continue
		}

		update, ok := engine.handleDatagram(ctx, family, rb[:nBytes], src, index)
		if !ok {
			continue
		}
		if !emit(ctx, updates, update) {
			return
		}
	}
}

func (engine *Engine) countDecodeFailure(ctx context.Context, family pkgraw.Family, err error) {
	counterStore := pkgmyprom.FromContext(ctx)
	if counterStore == nil {
		return
	}
	reason := "other"
	var decodeErr *pkgraw.DecodeError
	if errors.As(err, &decodeErr) {
		reason = decodeErr.ReasonLabel()
	}
	counterStore.NumDecodeFailures.WithLabelValues(family.String(), reason).Inc()
}

// handleDatagram turns one received datagram into the update it implies, if any.
// Everything that can't be attributed to a monitored host is logged and dropped.
func (engine *Engine) handleDatagram(ctx context.Context, family pkgraw.Family, b []byte, src netip.Addr, index *correlationIndex) (pkghoststats.StatusUpdate, bool) {
	counterStore := pkgmyprom.FromContext(ctx)

	if family == pkgraw.FamilyV4 && engine.config.StrictChecksum && !pkgraw.VerifyChecksumV4(b) {
		err := &pkgraw.DecodeError{Reason: pkgraw.ErrBadChecksum, Family: family}
		if len(b) > 1 {
			err.Type, err.Code = b[0], b[1]
		}
		log.Printf("dropping datagram from %s: %v: %s", src, err, pkgraw.DescribeDatagram(family, b))
		engine.countDecodeFailure(ctx, family, err)
		return pkghoststats.StatusUpdate{}, false
	}

	msg, err := pkgraw.Decode(family, b)
	if err != nil {
		log.Printf("dropping undecodable datagram from %s: %v: %s", src, err, pkgraw.DescribeDatagram(family, b))
		engine.countDecodeFailure(ctx, family, err)
		return pkghoststats.StatusUpdate{}, false
	}

	if kind, isError := classifyICMPError(msg); isError {
		// charged to the host the quoted datagram was sent to, not to the reporting router
		dst, ok := pkgraw.QuotedDestination(msg)
		if !ok {
			log.Printf("dropping %s from %s without a usable quoted header: %s", kind, src, pkgraw.DescribeDatagram(family, b))
			engine.countDecodeFailure(ctx, family, &pkgraw.DecodeError{Reason: pkgraw.ErrTruncated, Family: family})
			return pkghoststats.StatusUpdate{}, false
		}
		hostIndex, ok := index.Lookup(dst)
		if !ok {
			log.Printf("dropping %s from %s about unmonitored address %s", kind, src, dst)
			if counterStore != nil {
				counterStore.NumCorrelationMisses.WithLabelValues(family.String()).Inc()
			}
			return pkghoststats.StatusUpdate{}, false
		}
		log.Printf("received %s from %s about %s", kind, src, dst)
		if counterStore != nil {
			counterStore.NumICMPErrors.WithLabelValues(family.String(), kind.String()).Inc()
		}
		return pkghoststats.Failed(hostIndex, kind), true
	}

	hostIndex, ok := index.Lookup(src)
	if !ok {
		log.Printf("dropping datagram from unmonitored address %s: %s", src, pkgraw.DescribeDatagram(family, b))
		if counterStore != nil {
			counterStore.NumCorrelationMisses.WithLabelValues(family.String()).Inc()
		}
		return pkghoststats.StatusUpdate{}, false
	}

	if data, isReply := pkgraw.EchoData(msg); isReply {
		sentAt, err := pkgraw.ParseTimestampPayload(data)
		if err != nil {
			log.Printf("dropping echo reply from %s without timestamp: %v", src, err)
			engine.countDecodeFailure(ctx, family, err)
			return pkghoststats.StatusUpdate{}, false
		}
		latencyMicros := engine.now().UnixMicro() - sentAt.UnixMicro()
		if counterStore != nil {
			counterStore.NumRepliesReceived.WithLabelValues(family.String()).Inc()
		}
		return pkghoststats.Received(hostIndex, latencyMicros), true
	}

	log.Printf("ignoring %s message from %s: %s", family, src, pkgraw.DescribeDatagram(family, b))
	return pkghoststats.StatusUpdate{}, false
}
