package hoststats

import (
	"context"
	"errors"
	"log"
)

var ErrAggregatorStopped = errors.New("aggregator is stopped")

type ServiceRequest struct {
	Func   func(ctx context.Context) error
	Result chan error
}

// Aggregator owns the host table. Updates and snapshot requests are both served by the
// goroutine running Run, so the table is never touched concurrently.
type Aggregator struct {
	table       []HostInfo
	serviceChan chan chan ServiceRequest
	drained     chan struct{}

	// OnApply, when set, runs on the aggregator goroutine after every applied update
	// with a copy of the updated host.
	OnApply func(update StatusUpdate, host HostInfo)
}

func NewAggregator(hosts []HostInfo) *Aggregator {
	table := make([]HostInfo, len(hosts))
	for i, host := range hosts {
		table[i] = host.Clone()
	}
	return &Aggregator{
		table:       table,
		serviceChan: make(chan chan ServiceRequest),
		drained:     make(chan struct{}),
	}
}

// Run applies updates until ctx is done. When updates is closed the table is final, but
// snapshots are still served until ctx is done.
func (agg *Aggregator) Run(ctx context.Context, updates <-chan StatusUpdate) {
	defer close(agg.serviceChan)

	for {
		serviceSubCh := make(chan ServiceRequest)

		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				log.Printf("updates channel is closed, %d hosts final", len(agg.table))
				updates = nil
				close(agg.drained)
				continue
			}
			agg.apply(update)
		case agg.serviceChan <- serviceSubCh:
			serviceReq, ok := <-serviceSubCh
			if !ok {
				continue
			}
			serviceReq.Result <- serviceReq.Func(ctx)
			close(serviceReq.Result)
		}
	}
}

func (agg *Aggregator) apply(update StatusUpdate) {
	Apply(update, agg.table)
	if agg.OnApply != nil && update.HostIndex >= 0 && update.HostIndex < len(agg.table) {
		agg.OnApply(update, agg.table[update.HostIndex].Clone())
	}
}

// Drained is closed once the updates channel given to Run has been closed and
// everything sent on it applied.
func (agg *Aggregator) Drained() <-chan struct{} {
	return agg.drained
}

func (agg *Aggregator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case requestCh, ok := <-agg.serviceChan:
		if !ok {
			return ErrAggregatorStopped
		}
		defer close(requestCh)

		resultCh := make(chan error, 1)
		requestCh <- ServiceRequest{
			Func:   fn,
			Result: resultCh,
		}
		return <-resultCh
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a deep copy of the host table, in the order the hosts were given.
func (agg *Aggregator) Snapshot(ctx context.Context) ([]HostInfo, error) {
	var hosts []HostInfo
	err := agg.do(ctx, func(ctx context.Context) error {
		hosts = make([]HostInfo, len(agg.table))
		for i, host := range agg.table {
			hosts[i] = host.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hosts, nil
}
