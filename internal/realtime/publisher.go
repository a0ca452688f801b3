// Package realtime carries carpool change tokens over NATS: the store publishes
// one per committed write and clients subscribe to know when to refetch.
package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sfcmove/internal/logging"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Token is the payload of a change message. Receivers treat it as a hint only.
type Token struct {
	Table string    `json:"table"`
	Op    string    `json:"op"`
	At    time.Time `json:"at"`
}

// Connect dials NATS and keeps the connected gauge in step with the connection.
func Connect(url, name string, m PublisherMetrics, log *zap.Logger) (*nats.Conn, error) {
	log = logging.OrNop(log)
	setConnected := func(up bool) {
		if m != nil {
			m.NATSSetConnected(up)
		}
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			setConnected(false)
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			setConnected(true)
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			setConnected(false)
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	setConnected(true)
	return nc, nil
}

type publishConn interface {
	Publish(subject string, data []byte) error
}

type Publisher struct {
	nc          publishConn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	log         *zap.Logger
	now         func() time.Time
}

func NewPublisher(nc publishConn, prefix string, logSubjects bool, m PublisherMetrics, log *zap.Logger) *Publisher {
	log = logging.OrNop(log)
	return &Publisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m, log: log, now: time.Now}
}

// Notify publishes a change token for table. Failures are logged and counted,
// never returned: the write it describes has already committed.
func (p *Publisher) Notify(table, op string) {
	subject := Subject(p.prefix, table)
	b, err := json.Marshal(Token{Table: table, Op: op, At: p.now().UTC()})
	if err != nil {
		p.log.Error("encode change token", zap.Error(err))
		return
	}
	if p.logSubjects {
		p.log.Debug("nats publish", zap.String("subject", subject), zap.String("op", op))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		p.log.Warn("publish change token", zap.String("subject", subject), zap.Error(err))
	}
}

// Subject is the subject change tokens for table are published on.
func Subject(prefix, table string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return subjectToken(table)
	}
	return prefix + "." + subjectToken(table)
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
