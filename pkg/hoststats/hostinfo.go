package hoststats

import (
	"math"
	"net/netip"
)

// HostInfo holds the running statistics of one monitored host. Only the aggregator
// mutates it; everyone else works on copies.
type HostInfo struct {
	// as given by the user
	DisplayName string
	Address     netip.Addr

	PingsSent  uint32
	Successful uint32

	LatestLatencyMicros  *int64
	SumLatencyMicros     int64
	SumSquaredLatencyMs2 float64
	MinLatencyMicros     *int64
	MaxLatencyMicros     *int64

	LastError *ErrorKind
}

func NewHostInfo(displayName string, addr netip.Addr) HostInfo {
	return HostInfo{DisplayName: displayName, Address: addr}
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a copy sharing no memory with h.
func (h HostInfo) Clone() HostInfo {
	h.LatestLatencyMicros = copyPtr(h.LatestLatencyMicros)
	h.MinLatencyMicros = copyPtr(h.MinLatencyMicros)
	h.MaxLatencyMicros = copyPtr(h.MaxLatencyMicros)
	h.LastError = copyPtr(h.LastError)
	return h
}

// Apply folds one update into the host table. Updates for indices outside the table are ignored.
func Apply(update StatusUpdate, table []HostInfo) {
	if update.HostIndex < 0 || update.HostIndex >= len(table) {
		return
	}
	host := &table[update.HostIndex]

	switch update.Type {
	case UpdateSent:
		host.PingsSent++
	case UpdateReceived:
		latency := update.LatencyMicros
		host.Successful++
		host.LastError = nil
		host.LatestLatencyMicros = &latency
		host.SumLatencyMicros += latency
		latencyMs := float64(latency) / 1000.0
		host.SumSquaredLatencyMs2 += latencyMs * latencyMs
		if host.MinLatencyMicros == nil || latency < *host.MinLatencyMicros {
			lo := latency
			host.MinLatencyMicros = &lo
		}
		if host.MaxLatencyMicros == nil || latency > *host.MaxLatencyMicros {
			hi := latency
			host.MaxLatencyMicros = &hi
		}
	case UpdateError:
		kind := update.Error
		host.LastError = &kind
	}
}

// AverageMs is the mean latency in milliseconds, NaN before the first reply.
func (h *HostInfo) AverageMs() float64 {
	if h.Successful == 0 {
		return math.NaN()
	}
	return float64(h.SumLatencyMicros) / (float64(h.Successful) * 1000.0)
}

// JitterMs is the population standard deviation of the latency in milliseconds,
// NaN before the first reply.
func (h *HostInfo) JitterMs() float64 {
	if h.Successful == 0 {
		return math.NaN()
	}
	avg := h.AverageMs()
	variance := h.SumSquaredLatencyMs2/float64(h.Successful) - avg*avg
	// rounding can push a zero variance slightly below zero
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// LossPercent is NaN while nothing has been sent. A host can answer more often than it
// was asked (late replies to a round sent before a restart, duplicates), in which case
// the loss is negative.
func (h *HostInfo) LossPercent() float64 {
	loss, ok := h.Loss()
	if !ok {
		return math.NaN()
	}
	return loss
}

// Loss is LossPercent with the no-data state made explicit.
func (h *HostInfo) Loss() (float64, bool) {
	if h.PingsSent == 0 {
		return 0, false
	}
	lost := float64(h.PingsSent) - float64(h.Successful)
	return lost * 100.0 / float64(h.PingsSent), true
}
