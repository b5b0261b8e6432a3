package utils

import "time"

type CtxKey string

const (
	CtxKeyPrometheusCounterStore = CtxKey("prometheus_counter_store")
)

// GlobalSharedContext is bound into every kong command.
type GlobalSharedContext struct {
	BuildVersion *BuildVersion

	// filled in by the monitor command once it starts pinging
	StartedAt  time.Time
	NumTargets int
}
