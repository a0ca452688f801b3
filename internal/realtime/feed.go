package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sfcmove/internal/carpool"
)

const defaultBuffer = 8

type subscribeConn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Feed is a carpool.ChangeFeed backed by NATS subjects under prefix.
type Feed struct {
	nc      subscribeConn
	prefix  string
	buffer  int
	log     *zap.Logger
	dropped func()
}

type FeedOption func(*Feed)

// WithBuffer sets how many undelivered tokens a subscription holds before dropping.
func WithBuffer(n int) FeedOption {
	return func(f *Feed) {
		if n > 0 {
			f.buffer = n
		}
	}
}

func WithFeedLogger(l *zap.Logger) FeedOption {
	return func(f *Feed) {
		if l != nil {
			f.log = l
		}
	}
}

// OnDrop is called for every token discarded because the buffer was full.
func OnDrop(fn func()) FeedOption { return func(f *Feed) { f.dropped = fn } }

func NewFeed(nc subscribeConn, prefix string, opts ...FeedOption) *Feed {
	f := &Feed{nc: nc, prefix: prefix, buffer: defaultBuffer, log: zap.NewNop()}
	for _, o := range opts {
		o(f)
	}
	return f
}

var _ carpool.ChangeFeed = (*Feed)(nil)

// Subscribe listens on one subject per table. The subscription ends when ctx is
// done or Close is called; its channel is then closed.
func (f *Feed) Subscribe(ctx context.Context, tables ...string) (carpool.Subscription, error) {
	if len(tables) == 0 {
		return nil, errors.New("no tables to subscribe to")
	}
	s := &subscription{
		ch:      make(chan carpool.Change, f.buffer),
		stop:    make(chan struct{}),
		log:     f.log,
		dropped: f.dropped,
	}
	for _, t := range tables {
		subject := Subject(f.prefix, t)
		ns, err := f.nc.Subscribe(subject, s.handler(t))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, ns)
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.stop:
		}
	}()
	return s, nil
}

type subscription struct {
	ch      chan carpool.Change
	subs    []*nats.Subscription
	log     *zap.Logger
	dropped func()

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

func (s *subscription) Changes() <-chan carpool.Change { return s.ch }

func (s *subscription) handler(table string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		c := carpool.Change{Table: table, At: time.Now()}
		var tok Token
		if err := json.Unmarshal(msg.Data, &tok); err == nil {
			c.Op = tok.Op
			if !tok.At.IsZero() {
				c.At = tok.At
			}
		} else {
			s.log.Debug("undecodable change token", zap.String("subject", msg.Subject), zap.Error(err))
		}
		s.deliver(c)
	}
}

// deliver never blocks the NATS dispatcher; tokens beyond the buffer are dropped.
func (s *subscription) deliver(c carpool.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- c:
	default:
		if s.dropped != nil {
			s.dropped()
		}
	}
}

func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	close(s.stop)

	var errs []error
	for _, ns := range s.subs {
		if err := ns.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
