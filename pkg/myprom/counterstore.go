package myprom

import (
	"context"
	"log"
	"net/http"

	pkgutils "example.com/multiping/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
)

type CounterStore struct {
	StartedTime          prometheus.Gauge
	NumRequestsServed    *prometheus.CounterVec
	NumRequestsLimited   *prometheus.CounterVec
	NumPingsSent         *prometheus.CounterVec
	NumRepliesReceived   *prometheus.CounterVec
	NumSendErrors        *prometheus.CounterVec
	NumReadErrors        *prometheus.CounterVec
	NumDecodeFailures    *prometheus.CounterVec
	NumCorrelationMisses *prometheus.CounterVec
	NumICMPErrors        *prometheus.CounterVec
	NumBytesSent         *prometheus.CounterVec
	NumBytesReceived     *prometheus.CounterVec
	NumSnapshotsPublish  *prometheus.CounterVec
}

const (
	PromLabelFamily   = "family"
	PromLabelKind     = "kind"
	PromLabelReason   = "reason"
	PromLabelPath     = "path"
	PromLabelIndex    = "index"
	PromLabelHost     = "host"
	PromLabelAddress  = "address"
	PromLabelHasError = "haserror"
)

func register(reg prometheus.Registerer, name string, c prometheus.Collector) {
	if err := reg.Register(c); err != nil {
		log.Printf("%s might have been already registered: %v", name, err)
	}
}

func newCounterVec(reg prometheus.Registerer, name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	register(reg, name, vec)
	return vec
}

// NewCounterStore creates the multiping counters and registers them on reg.
func NewCounterStore(reg prometheus.Registerer) *CounterStore {
	cs := new(CounterStore)
	cs.StartedTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "multiping_started_at",
		Help: "The time when multiping was started",
	})
	register(reg, "multiping_started_at", cs.StartedTime)

	cs.NumRequestsServed = newCounterVec(reg, "multiping_num_requests_served",
		"The number of HTTP requests served", PromLabelPath)
	cs.NumRequestsLimited = newCounterVec(reg, "multiping_num_requests_limited",
		"The number of HTTP requests refused for exceeding the per-client rate limit", PromLabelPath)
	cs.NumPingsSent = newCounterVec(reg, "multiping_num_pings_sent",
		"The number of echo requests handed to the kernel", PromLabelFamily)
	cs.NumRepliesReceived = newCounterVec(reg, "multiping_num_replies_received",
		"The number of echo replies correlated to a monitored host", PromLabelFamily)
	cs.NumSendErrors = newCounterVec(reg, "multiping_num_send_errors",
		"The number of echo requests the kernel refused to send", PromLabelFamily, PromLabelKind)
	cs.NumReadErrors = newCounterVec(reg, "multiping_num_read_errors",
		"The number of failed socket reads, deadline expiry excluded", PromLabelFamily)
	cs.NumDecodeFailures = newCounterVec(reg, "multiping_num_decode_failures",
		"The number of received datagrams that could not be decoded", PromLabelFamily, PromLabelReason)
	cs.NumCorrelationMisses = newCounterVec(reg, "multiping_num_correlation_misses",
		"The number of received datagrams from addresses that are not monitored", PromLabelFamily)
	cs.NumICMPErrors = newCounterVec(reg, "multiping_num_icmp_errors",
		"The number of ICMP error messages received about monitored hosts", PromLabelFamily, PromLabelKind)
	cs.NumBytesSent = newCounterVec(reg, "multiping_num_bytes_sent",
		"The number of ICMP bytes sent", PromLabelFamily)
	cs.NumBytesReceived = newCounterVec(reg, "multiping_num_bytes_received",
		"The number of ICMP bytes received", PromLabelFamily)
	cs.NumSnapshotsPublish = newCounterVec(reg, "multiping_num_snapshots_published",
		"The number of snapshots published to the message broker", PromLabelHasError)

	return cs
}

func WithCounterStore(ctx context.Context, counterStore *CounterStore) context.Context {
	return context.WithValue(ctx, pkgutils.CtxKeyPrometheusCounterStore, counterStore)
}

// FromContext returns the counter store carried by ctx, or nil.
func FromContext(ctx context.Context) *CounterStore {
	counterStore, ok := ctx.Value(pkgutils.CtxKeyPrometheusCounterStore).(*CounterStore)
	if !ok {
		return nil
	}
	return counterStore
}

func WithCounterStoreHandler(originalHandler http.Handler, counterStore *CounterStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(WithCounterStore(r.Context(), counterStore))
		originalHandler.ServeHTTP(w, r)
	})
}
