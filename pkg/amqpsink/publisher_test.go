package amqpsink

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	pkghoststats "example.com/multiping/pkg/hoststats"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	kinds      []string
	declareErr error
	publishErr error
	published  []published
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.declared = append(c.declared, name)
	c.kinds = append(c.kinds, kind)
	return c.declareErr
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

type staticSource []pkghoststats.HostInfo

func (s staticSource) Snapshot(ctx context.Context) ([]pkghoststats.HostInfo, error) {
	return s, nil
}

func TestNewPublisherDeclaresFanout(t *testing.T) {
	ch := new(fakeChannel)
	_, err := NewPublisher(ch, nil, Config{Exchange: "multiping.snapshots"})
	require.NoError(t, err)
	assert.Equal(t, []string{"multiping.snapshots"}, ch.declared)
	assert.Equal(t, []string{"fanout"}, ch.kinds)

	_, err = NewPublisher(new(fakeChannel), nil, Config{})
	assert.Error(t, err)

	_, err = NewPublisher(&fakeChannel{declareErr: errors.New("access refused")}, nil, Config{Exchange: "x"})
	assert.ErrorContains(t, err, "access refused")
}

func TestPublishBuildsJSONMessage(t *testing.T) {
	ch := new(fakeChannel)
	publisher, err := NewPublisher(ch, nil, Config{Exchange: "ex", RoutingKey: "rk"})
	require.NoError(t, err)

	table := []pkghoststats.HostInfo{pkghoststats.NewHostInfo("gw", netip.MustParseAddr("192.0.2.1"))}
	snap := pkghoststats.NewSnapshot(table, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, publisher.Publish(context.Background(), snap))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "ex", got.exchange)
	assert.Equal(t, "rk", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, snap.ID.String(), got.msg.MessageId)
	assert.True(t, got.msg.Timestamp.Equal(snap.TakenAt))

	var decoded pkghoststats.Snapshot
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, snap.ID, decoded.ID)
	assert.Equal(t, "gw", decoded.Hosts[0].Name)
}

func TestRunPublishesPeriodically(t *testing.T) {
	ch := new(fakeChannel)
	publisher, err := NewPublisher(ch, nil, Config{Exchange: "ex"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		publisher.Run(ctx, staticSource{pkghoststats.NewHostInfo("a", netip.MustParseAddr("192.0.2.1"))}, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return ch.count() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRunSurvivesPublishErrors(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	publisher, err := NewPublisher(ch, nil, Config{Exchange: "ex"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	publisher.Run(ctx, staticSource{}, 5*time.Millisecond)
	assert.Equal(t, 0, ch.count())
}

func TestCloseClosesBoth(t *testing.T) {
	ch := new(fakeChannel)
	conn := new(closer)
	publisher, err := NewPublisher(ch, conn, Config{Exchange: "ex"})
	require.NoError(t, err)
	require.NoError(t, publisher.Close())
	assert.True(t, ch.closed)
	assert.True(t, conn.closed)
}
