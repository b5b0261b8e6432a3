package pinger

import (
	"context"
	"log"
	"time"

	pkghoststats "example.com/multiping/pkg/hoststats"
	pkgmyprom "example.com/multiping/pkg/myprom"
	pkgraw "example.com/multiping/pkg/raw"
)

func (engine *Engine) runSender(ctx context.Context, updates chan<- pkghoststats.StatusUpdate) {
	log.Printf("sender goroutine for %d targets is started, interval %v", len(engine.config.Targets), engine.config.Interval)
	defer log.Printf("sender goroutine is exitting")

	ticker := time.NewTicker(engine.config.Interval)
	defer ticker.Stop()

	var seq uint16
	for {
		if !engine.sendRound(ctx, seq, updates) {
			return
		}
		seq++

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sendRound sends one echo request to every target in order. It returns false once ctx is done.
func (engine *Engine) sendRound(ctx context.Context, seq uint16, updates chan<- pkghoststats.StatusUpdate) bool {
	counterStore := pkgmyprom.FromContext(ctx)

	for hostIndex, target := range engine.config.Targets {
		if ctx.Err() != nil {
			return false
		}

		family := familyOf(target.Addr)
		sock, ok := engine.sockets[family]
		if !ok {
			continue
		}

		payload := pkgraw.BuildTimestampPayload(engine.now())
		wb := pkgraw.EncodeEchoRequest(family, engine.identifier, seq, payload)

		var update pkghoststats.StatusUpdate
		if _, err := sock.Send(ctx, target.Addr, wb); err != nil {
			kind := ClassifyError(err)
			log.Printf("failed to send echo request to %s (%s): %v", target.Name, target.Addr, err)
			if counterStore != nil {
				counterStore.NumSendErrors.WithLabelValues(family.String(), kind.String()).Inc()
			}
			update = pkghoststats.Failed(hostIndex, kind)
		} else {
			if counterStore != nil {
				counterStore.NumPingsSent.WithLabelValues(family.String()).Inc()
			}
			update = pkghoststats.Sent(hostIndex)
		}

		if !emit(ctx, updates, update) {
			return false
		}
	}
	return true
}
