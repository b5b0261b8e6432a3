package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	pkghoststats "example.com/multiping/pkg/hoststats"
	pkgmyprom "example.com/multiping/pkg/myprom"
)

type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]pkghoststats.HostInfo, error)
}

func takeSnapshot(ctx context.Context, source SnapshotSource, timeout time.Duration) (*pkghoststats.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	hosts, err := source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	snap := pkghoststats.NewSnapshot(hosts, time.Now())
	return &snap, nil
}

func markAsServed(r *http.Request) {
	if counterStore := pkgmyprom.FromContext(r.Context()); counterStore != nil {
		counterStore.NumRequestsServed.WithLabelValues(r.URL.Path).Inc()
	}
}

type StatsHandler struct {
	source  SnapshotSource
	timeout time.Duration
}

func NewStatsHandler(source SnapshotSource, timeout time.Duration) *StatsHandler {
	return &StatsHandler{source: source, timeout: timeout}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	markAsServed(r)

	snap, err := takeSnapshot(r.Context(), h.source, h.timeout)
	if err != nil {
		log.Printf("failed to take snapshot for %s: %v", r.RemoteAddr, err)
		http.Error(w, "statistics are not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("failed to write snapshot to %s: %v", r.RemoteAddr, err)
	}
}
