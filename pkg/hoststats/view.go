package hoststats

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// HostView is the JSON form of a HostInfo. Statistics without data are null.
type HostView struct {
	Name            string   `json:"name"`
	Address         string   `json:"address"`
	PingsSent       uint32   `json:"pings_sent"`
	Successful      uint32   `json:"successful"`
	LatestLatencyMs *float64 `json:"latest_ms"`
	MinLatencyMs    *float64 `json:"min_ms"`
	MaxLatencyMs    *float64 `json:"max_ms"`
	AverageMs       *float64 `json:"avg_ms"`
	JitterMs        *float64 `json:"jitter_ms"`
	LossPercent     *float64 `json:"loss_percent"`
	LastError       *string  `json:"last_error,omitempty"`
}

func microsToMs(us *int64) *float64 {
	if us == nil {
		return nil
	}
	ms := float64(*us) / 1000.0
	return &ms
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func NewHostView(h HostInfo) HostView {
	view := HostView{
		Name:            h.DisplayName,
		Address:         h.Address.String(),
		PingsSent:       h.PingsSent,
		Successful:      h.Successful,
		LatestLatencyMs: microsToMs(h.LatestLatencyMicros),
		MinLatencyMs:    microsToMs(h.MinLatencyMicros),
		MaxLatencyMs:    microsToMs(h.MaxLatencyMicros),
		AverageMs:       finiteOrNil(h.AverageMs()),
		JitterMs:        finiteOrNil(h.JitterMs()),
		LossPercent:     finiteOrNil(h.LossPercent()),
	}
	if h.LastError != nil {
		lastErr := h.LastError.String()
		view.LastError = &lastErr
	}
	return view
}

// Snapshot is one published state of the whole host table.
type Snapshot struct {
	ID      uuid.UUID  `json:"id"`
	TakenAt time.Time  `json:"taken_at"`
	Hosts   []HostView `json:"hosts"`
}

func NewSnapshot(hosts []HostInfo, takenAt time.Time) Snapshot {
	views := make([]HostView, len(hosts))
	for i, host := range hosts {
		views[i] = NewHostView(host)
	}
	return Snapshot{
		ID:      uuid.New(),
		TakenAt: takenAt,
		Hosts:   views,
	}
}
