package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfcmove/internal/carpool"
)

type fakeConn struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]nats.MsgHandler
	pubErr    error
	subErr    error
}

func newFakeConn() *fakeConn {
	return &fakeConn{published: map[string][][]byte{}, handlers: map[string]nats.MsgHandler{}}
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubErr != nil {
		return c.pubErr
	}
	c.published[subject] = append(c.published[subject], data)
	return nil
}

func (c *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return nil, c.subErr
	}
	c.handlers[subject] = cb
	return &nats.Subscription{Subject: subject}, nil
}

func (c *fakeConn) deliver(subject string, data []byte) {
	c.mu.Lock()
	cb := c.handlers[subject]
	c.mu.Unlock()
	cb(&nats.Msg{Subject: subject, Data: data})
}

type pubMetrics struct{ published, errs, observed int }

func (m *pubMetrics) NATSPublishedInc()            { m.published++ }
func (m *pubMetrics) NATSPublishErrInc()           { m.errs++ }
func (m *pubMetrics) PublishObserve(time.Duration) { m.observed++ }
func (m *pubMetrics) NATSSetConnected(bool)        {}

func TestSubject(t *testing.T) {
	assert.Equal(t, "carpool.changes.taxi_groups", Subject("carpool.changes", "taxi_groups"))
	assert.Equal(t, "carpool.changes.a_b", Subject(" carpool.changes. ", "a.b"))
	assert.Equal(t, "_", Subject("", " "))
}

func TestPublisherNotify(t *testing.T) {
	nc := newFakeConn()
	m := &pubMetrics{}
	p := NewPublisher(nc, "carpool.changes", true, m, nil)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	p.Notify(carpool.TableMembers, "INSERT")

	msgs := nc.published["carpool.changes.taxi_group_members"]
	require.Len(t, msgs, 1)
	var tok Token
	require.NoError(t, json.Unmarshal(msgs[0], &tok))
	assert.Equal(t, Token{Table: carpool.TableMembers, Op: "INSERT", At: at}, tok)
	assert.Equal(t, 1, m.published)
	assert.Equal(t, 1, m.observed)

	nc.pubErr = errors.New("connection closed")
	p.Notify(carpool.TableGroups, "UPDATE")
	assert.Equal(t, 1, m.errs)
}

func TestFeedDeliversTokens(t *testing.T) {
	nc := newFakeConn()
	f := NewFeed(nc, "carpool.changes")
	sub, err := f.Subscribe(context.Background(), carpool.TableGroups, carpool.TableMembers)
	require.NoError(t, err)
	defer sub.Close()

	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	b, _ := json.Marshal(Token{Table: carpool.TableGroups, Op: "UPDATE", At: at})
	nc.deliver("carpool.changes.taxi_groups", b)
	nc.deliver("carpool.changes.taxi_group_members", []byte("garbage"))

	c := <-sub.Changes()
	assert.Equal(t, carpool.Change{Table: carpool.TableGroups, Op: "UPDATE", At: at}, c)
	c = <-sub.Changes()
	assert.Equal(t, carpool.TableMembers, c.Table)
	assert.Empty(t, c.Op)
	assert.False(t, c.At.IsZero())
}

func TestFeedDropsWhenFull(t *testing.T) {
	nc := newFakeConn()
	drops := 0
	f := NewFeed(nc, "p", WithBuffer(2), OnDrop(func() { drops++ }))
	sub, err := f.Subscribe(context.Background(), carpool.TableGroups)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		nc.deliver("p.taxi_groups", nil)
	}
	assert.Equal(t, 3, drops)
	assert.Len(t, sub.Changes(), 2)

	sub.Close()
	nc.deliver("p.taxi_groups", nil)
	_, ok := <-sub.Changes()
	assert.True(t, ok)
	_, ok = <-sub.Changes()
	assert.True(t, ok)
	_, ok = <-sub.Changes()
	assert.False(t, ok)
}

func TestFeedClosesOnContextCancel(t *testing.T) {
	nc := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := NewFeed(nc, "p").Subscribe(ctx, carpool.TableGroups)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-sub.Changes():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestFeedSubscribeErrors(t *testing.T) {
	nc := newFakeConn()
	_, err := NewFeed(nc, "p").Subscribe(context.Background())
	assert.Error(t, err)

	nc.subErr = errors.New("no connection")
	_, err = NewFeed(nc, "p").Subscribe(context.Background(), carpool.TableGroups)
	assert.ErrorContains(t, err, "subscribe p.taxi_groups")
}
