package myprom

import (
	"context"
	"log"
	"math"
	"strconv"
	"time"

	pkghoststats "example.com/multiping/pkg/hoststats"
	"github.com/prometheus/client_golang/prometheus"
)

type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]pkghoststats.HostInfo, error)
}

// HostStatsCollector exports the per-host statistics of the latest snapshot at scrape time.
type HostStatsCollector struct {
	source  SnapshotSource
	timeout time.Duration

	pingsSent  *prometheus.Desc
	successful *prometheus.Desc
	latestMs   *prometheus.Desc
	minMs      *prometheus.Desc
	maxMs      *prometheus.Desc
	avgMs      *prometheus.Desc
	jitterMs   *prometheus.Desc
	lossPct    *prometheus.Desc
	hasError   *prometheus.Desc
}

func NewHostStatsCollector(source SnapshotSource, timeout time.Duration) *HostStatsCollector {
	// the same host may be listed more than once, the index keeps the series apart
	labels := []string{PromLabelIndex, PromLabelHost, PromLabelAddress}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, labels, nil)
	}
	return &HostStatsCollector{
		source:     source,
		timeout:    timeout,
		pingsSent:  desc("multiping_host_pings_sent_total", "Echo requests sent to the host"),
		successful: desc("multiping_host_replies_total", "Echo replies received from the host"),
		latestMs:   desc("multiping_host_latest_latency_ms", "Latency of the latest reply"),
		minMs:      desc("multiping_host_min_latency_ms", "Smallest latency seen"),
		maxMs:      desc("multiping_host_max_latency_ms", "Largest latency seen"),
		avgMs:      desc("multiping_host_avg_latency_ms", "Mean latency"),
		jitterMs:   desc("multiping_host_jitter_ms", "Standard deviation of the latency"),
		lossPct:    desc("multiping_host_loss_percent", "Share of echo requests without a reply"),
		hasError:   desc("multiping_host_has_error", "1 when the latest event about the host was an error"),
	}
}

func (c *HostStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.pingsSent, c.successful, c.latestMs, c.minMs, c.maxMs, c.avgMs, c.jitterMs, c.lossPct, c.hasError} {
		ch <- d
	}
}

func (c *HostStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	hosts, err := c.source.Snapshot(ctx)
	if err != nil {
		log.Printf("failed to take snapshot for metrics: %v", err)
		return
	}

	for i, host := range hosts {
		labels := []string{strconv.Itoa(i), host.DisplayName, host.Address.String()}
		gauge := func(d *prometheus.Desc, v float64) {
			if math.IsNaN(v) {
				return
			}
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
		}
		micros := func(d *prometheus.Desc, us *int64) {
			if us != nil {
				gauge(d, float64(*us)/1000.0)
			}
		}

		ch <- prometheus.MustNewConstMetric(c.pingsSent, prometheus.CounterValue, float64(host.PingsSent), labels...)
		ch <- prometheus.MustNewConstMetric(c.successful, prometheus.CounterValue, float64(host.Successful), labels...)
		micros(c.latestMs, host.LatestLatencyMicros)
		micros(c.minMs, host.MinLatencyMicros)
		micros(c.maxMs, host.MaxLatencyMicros)
		gauge(c.avgMs, host.AverageMs())
		gauge(c.jitterMs, host.JitterMs())
		gauge(c.lossPct, host.LossPercent())
		hasError := 0.0
		if host.LastError != nil {
			hasError = 1.0
		}
		gauge(c.hasError, hasError)
	}
}
