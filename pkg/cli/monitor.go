package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkgamqpsink "example.com/multiping/pkg/amqpsink"
	pkghandler "example.com/multiping/pkg/handler"
	pkghoststats "example.com/multiping/pkg/hoststats"
	pkgmyprom "example.com/multiping/pkg/myprom"
	pkgpinger "example.com/multiping/pkg/pinger"
	pkgratelimit "example.com/multiping/pkg/ratelimit"
	pkgrender "example.com/multiping/pkg/render"
	pkgutils "example.com/multiping/pkg/utils"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MonitorCmd struct {
	Hosts []string `arg:"" help:"Which hosts (IP addresses or domain names) to ping" env:"MULTIPING_HOSTS"`

	Interval       float64 `short:"i" help:"How often the hosts should be pinged, in seconds" default:"1.0" env:"MULTIPING_INTERVAL"`
	Statistics     bool    `short:"s" help:"If specified, min, max, average and jitter latency stats are shown" env:"MULTIPING_STATISTICS"`
	Color          bool    `help:"Colorize the table" env:"MULTIPING_COLOR"`
	Refresh        string  `help:"How often the table is redrawn" default:"1s" env:"MULTIPING_REFRESH"`
	ReadTimeout    string  `help:"Upper bound of a single socket read, so that shutdown is noticed" default:"500ms" env:"MULTIPING_READ_TIMEOUT"`
	StrictChecksum bool    `help:"Drop ICMPv4 replies whose checksum does not match" env:"MULTIPING_STRICT_CHECKSUM"`

	PreferV6       bool   `name:"prefer-v6" help:"Ping the IPv6 address of hosts that have both" env:"MULTIPING_PREFER_V6"`
	Resolver       string `help:"The address of the resolver to use for DNS resolution, the system resolver if empty" env:"MULTIPING_RESOLVER"`
	ResolveTimeout string `help:"Timeout of resolving a single host" default:"10s" env:"MULTIPING_RESOLVE_TIMEOUT"`
	ShowRoutes     bool   `help:"Log the route to every host before starting" env:"MULTIPING_SHOW_ROUTES"`

	// Prometheus stuffs
	MetricsListenAddress string `help:"Endpoint to expose prometheus metrics, disabled if empty" default:"" env:"MULTIPING_METRICS_LISTEN_ADDRESS"`
	MetricsPath          string `help:"Path to expose prometheus metrics" default:"/metrics" env:"MULTIPING_METRICS_PATH"`

	// when http listen address is not empty, /stats, /ws and /version are served
	HTTPListenAddress string `name:"http-listen-address" help:"Address to listen on for HTTP" default:"" env:"MULTIPING_HTTP_LISTEN_ADDRESS"`
	WSInterval        string `name:"ws-interval" help:"How often a snapshot is pushed to WebSocket clients" default:"1s" env:"MULTIPING_WS_INTERVAL"`
	HTTPRateLimit     int    `name:"http-rate-limit" help:"Requests a single client may make per rate limit window, unlimited if 0" default:"0" env:"MULTIPING_HTTP_RATE_LIMIT"`
	HTTPRateWindow    string `name:"http-rate-window" help:"Length of the rate limit window" default:"1m" env:"MULTIPING_HTTP_RATE_WINDOW"`
	TrustProxyHeaders bool   `help:"Rate limit by X-Forwarded-For/X-Real-Ip instead of the peer address, only safe behind a reverse proxy" env:"MULTIPING_TRUST_PROXY_HEADERS"`

	AMQPURL         string `name:"amqp-url" help:"URL of the AMQP broker to publish snapshots to, disabled if empty" env:"MULTIPING_AMQP_URL"`
	AMQPExchange    string `name:"amqp-exchange" help:"Fanout exchange the snapshots are published to" default:"multiping.snapshots" env:"MULTIPING_AMQP_EXCHANGE"`
	AMQPRoutingKey  string `name:"amqp-routing-key" help:"Routing key of the published snapshots" default:"" env:"MULTIPING_AMQP_ROUTING_KEY"`
	PublishInterval string `help:"How often a snapshot is published" default:"10s" env:"MULTIPING_PUBLISH_INTERVAL"`
}

const snapshotTimeout = 2 * time.Second

func secondsToDuration(secs float64) (time.Duration, error) {
	if !(secs > 0) {
		return 0, fmt.Errorf("interval must be a positive number of seconds, got %v", secs)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func parsePositiveDuration(name, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, s)
	}
	return d, nil
}

// resolveTargets resolves every host; the ones that fail are reported on errOut and left out.
func resolveTargets(ctx context.Context, resolver *net.Resolver, hosts []string, preferV6 bool, timeout time.Duration, errOut io.Writer) []pkgpinger.Target {
	targets := make([]pkgpinger.Target, 0, len(hosts))
	for _, host := range hosts {
		addr, err := pkgutils.ResolveHost(ctx, resolver, host, preferV6, timeout)
		if err != nil {
			fmt.Fprintf(errOut, "Failed to resolve %s: %v\n", host, err)
			continue
		}
		targets = append(targets, pkgpinger.Target{Name: host, Addr: addr})
	}
	return targets
}

func hostTable(targets []pkgpinger.Target) []pkghoststats.HostInfo {
	hosts := make([]pkghoststats.HostInfo, len(targets))
	for i, target := range targets {
		hosts[i] = pkghoststats.NewHostInfo(target.Name, target.Addr)
	}
	return hosts
}

// logErrorTransitions logs a host going from healthy to failing, once per transition.
func logErrorTransitions() func(update pkghoststats.StatusUpdate, host pkghoststats.HostInfo) {
	failing := make(map[int]bool)
	return func(update pkghoststats.StatusUpdate, host pkghoststats.HostInfo) {
		switch update.Type {
		case pkghoststats.UpdateError:
			if !failing[update.HostIndex] {
				log.Printf("%s (%s) is failing: %s", host.DisplayName, host.Address, update.Error)
			}
			failing[update.HostIndex] = true
		case pkghoststats.UpdateReceived:
			if failing[update.HostIndex] {
				log.Printf("%s (%s) is answering again", host.DisplayName, host.Address)
			}
			failing[update.HostIndex] = false
		}
	}
}

func serveHTTP(ctx context.Context, listener net.Listener, handler http.Handler, what string) {
	server := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		log.Printf("Shutting down %s server", what)
		server.Shutdown(context.Background())
	}()
	log.Printf("Serving %s on address %s", what, listener.Addr())
	if err := server.Serve(listener); err != nil {
		if !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("failed to serve %s: %v", what, err)
			return
		}
		log.Printf("%s server exitted", what)
	}
}

func (monitorCmd *MonitorCmd) Run(sharedCtx *pkgutils.GlobalSharedContext) error {
	interval, err := secondsToDuration(monitorCmd.Interval)
	if err != nil {
		return err
	}
	refresh, err := parsePositiveDuration("refresh interval", monitorCmd.Refresh)
	if err != nil {
		return err
	}
	readTimeout, err := parsePositiveDuration("read timeout", monitorCmd.ReadTimeout)
	if err != nil {
		return err
	}
	resolveTimeout, err := parsePositiveDuration("resolve timeout", monitorCmd.ResolveTimeout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := pkgutils.NewCustomResolver(&monitorCmd.Resolver, resolveTimeout)
	targets := resolveTargets(ctx, resolver, monitorCmd.Hosts, monitorCmd.PreferV6, resolveTimeout, os.Stderr)
	if len(targets) == 0 {
		return fmt.Errorf("none of the given hosts could be resolved")
	}

	if monitorCmd.ShowRoutes {
		for _, target := range targets {
			route, err := pkgutils.DescribeRoute(target.Addr)
			if err != nil {
				log.Printf("failed to look up route to %s: %v", target.Name, err)
				continue
			}
			log.Printf("Route to %s: %s", target.Name, route)
		}
	}

	counterStore := pkgmyprom.NewCounterStore(prometheus.DefaultRegisterer)
	sharedCtx.StartedAt = time.Now()
	sharedCtx.NumTargets = len(targets)
	counterStore.StartedTime.Set(float64(sharedCtx.StartedAt.Unix()))
	ctx = pkgmyprom.WithCounterStore(ctx, counterStore)

	engine, err := pkgpinger.NewEngine(pkgpinger.Config{
		Targets:        targets,
		Interval:       interval,
		ReadTimeout:    readTimeout,
		StrictChecksum: monitorCmd.StrictChecksum,
	})
	if err != nil {
		return fmt.Errorf("failed to start the ping engine: %w", err)
	}

	agg := pkghoststats.NewAggregator(hostTable(targets))
	agg.OnApply = logErrorTransitions()
	go agg.Run(ctx, engine.Run(ctx))

	if monitorCmd.MetricsListenAddress != "" {
		if err := prometheus.Register(pkgmyprom.NewHostStatsCollector(agg, snapshotTimeout)); err != nil {
			log.Printf("host stats collector might have been already registered: %v", err)
		}
		prometheusListener, err := net.Listen("tcp", monitorCmd.MetricsListenAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on address for prometheus metrics: %s: %w", monitorCmd.MetricsListenAddress, err)
		}
		defer prometheusListener.Close()
		serveMux := http.NewServeMux()
		serveMux.Handle(monitorCmd.MetricsPath, promhttp.Handler())
		go serveHTTP(ctx, prometheusListener, serveMux, "prometheus metrics")
	}

	if monitorCmd.HTTPListenAddress != "" {
		wsInterval, err := parsePositiveDuration("websocket interval", monitorCmd.WSInterval)
		if err != nil {
			return err
		}
		listener, err := net.Listen("tcp", monitorCmd.HTTPListenAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on address %s: %w", monitorCmd.HTTPListenAddress, err)
		}
		defer listener.Close()

		muxer := http.NewServeMux()
		muxer.Handle("/stats", pkghandler.NewStatsHandler(agg, snapshotTimeout))
		muxer.Handle("/ws", pkghandler.NewSnapshotStreamHandler(&websocket.Upgrader{}, agg, wsInterval))
		muxer.Handle("/version", pkghandler.NewVersionHandler(sharedCtx))

		var handler http.Handler = muxer
		if monitorCmd.HTTPRateLimit > 0 {
			rateWindow, err := parsePositiveDuration("rate limit window", monitorCmd.HTTPRateWindow)
			if err != nil {
				return err
			}
			ratelimitPool := pkgratelimit.NewMemoryBasedRateLimitPool(rateWindow, monitorCmd.HTTPRateLimit)
			ratelimitPool.Run(ctx)
			keyFunc := pkgratelimit.ClientKey
			if monitorCmd.TrustProxyHeaders {
				keyFunc = pkgratelimit.ForwardedClientKey
			}
			handler = pkgratelimit.WithRateLimit(handler, ratelimitPool, keyFunc, rateWindow)
		}
		go serveHTTP(ctx, listener, pkgmyprom.WithCounterStoreHandler(handler, counterStore), "HTTP")
	}

	if monitorCmd.AMQPURL != "" {
		publishInterval, err := parsePositiveDuration("publish interval", monitorCmd.PublishInterval)
		if err != nil {
			return err
		}
		publisher, err := pkgamqpsink.Dial(monitorCmd.AMQPURL, pkgamqpsink.Config{
			Exchange:   monitorCmd.AMQPExchange,
			RoutingKey: monitorCmd.AMQPRoutingKey,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
		log.Printf("Publishing snapshots to exchange %s every %s", monitorCmd.AMQPExchange, publishInterval)
		go publisher.Run(ctx, agg, publishInterval)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	table := pkgrender.NewTable(monitorCmd.Color, monitorCmd.Statistics)
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigs:
			log.Printf("Received signal: %v, exiting...", sig.String())
			snapCtx, snapCancel := context.WithTimeout(ctx, snapshotTimeout)
			hosts, err := agg.Snapshot(snapCtx)
			snapCancel()
			cancel()
			if err == nil {
				fmt.Fprint(os.Stdout, table.Render(hosts))
			}
			return nil
		case <-ticker.C:
			snapCtx, snapCancel := context.WithTimeout(ctx, snapshotTimeout)
			hosts, err := agg.Snapshot(snapCtx)
			snapCancel()
			if err != nil {
				log.Printf("failed to take snapshot: %v", err)
				continue
			}
			if err := table.Redraw(os.Stdout, hosts); err != nil {
				log.Printf("failed to draw table: %v", err)
			}
		}
	}
}
