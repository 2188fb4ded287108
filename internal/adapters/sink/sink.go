// Package sink persists finished auction rounds.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/okian/livebid/internal/domain/model"
	"github.com/okian/livebid/pkg/logger"
	"github.com/okian/livebid/pkg/metrics"
)

// DefaultSubject is where round results are published.
const DefaultSubject = "livebid.auction.results"

// ErrEmptySubject is returned when no subject is configured.
var ErrEmptySubject = errors.New("empty sink subject")

// MsgPublisher is the part of *nats.Conn the sink needs.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink publishes each round result as one JSON message. The round id
// is set as the message id so a JetStream stream can drop replays.
type NATSSink struct {
	pub     MsgPublisher
	conn    *nats.Conn
	subject string
	log     logger.Logger
}

// NewNATS connects to url and returns a sink publishing on subject.
func NewNATS(url, subject string, log logger.Logger) (*NATSSink, error) {
	if log == nil {
		log = logger.Nop()
	}
	ctx := context.Background()
	nc, err := nats.Connect(url,
		nats.Name("livebid"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(ctx, "nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info(ctx, "nats reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	s, err := NewNATSWithPublisher(nc, subject, log)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.conn = nc
	return s, nil
}

// NewNATSWithPublisher builds a sink over an existing publisher.
func NewNATSWithPublisher(pub MsgPublisher, subject string, log logger.Logger) (*NATSSink, error) {
	if subject == "" {
		return nil, ErrEmptySubject
	}
	if log == nil {
		log = logger.Nop()
	}
	return &NATSSink{pub: pub, subject: subject, log: log}, nil
}

// Publish sends r.
func (s *NATSSink) Publish(ctx context.Context, r model.RoundResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		metrics.RecordSinkPublish("error")
		return fmt.Errorf("marshal round result: %w", err)
	}
	msg := nats.NewMsg(s.subject)
	msg.Header.Set(nats.MsgIdHdr, r.RoundID)
	msg.Data = data

	if err := s.pub.PublishMsg(msg); err != nil {
		metrics.RecordSinkPublish("error")
		s.log.Error(ctx, "round result publish failed", logger.String("round", r.RoundID), logger.Error(err))
		return fmt.Errorf("publish round result: %w", err)
	}
	metrics.RecordSinkPublish("ok")
	s.log.Info(ctx, "round result published",
		logger.String("round", r.RoundID),
		logger.String("subject", s.subject))
	return nil
}

// Close drains the connection when the sink owns it.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// LogSink writes round results to the log. It is used when no broker is
// configured.
type LogSink struct {
	log logger.Logger
}

// NewLog creates a log sink.
func NewLog(log logger.Logger) *LogSink {
	if log == nil {
		log = logger.Nop()
	}
	return &LogSink{log: log}
}

// Publish logs r.
func (s *LogSink) Publish(ctx context.Context, r model.RoundResult) error {
	winner := ""
	if r.Winner != nil {
		winner = r.Winner.UniqueID
	}
	s.log.Info(ctx, "round finished",
		logger.String("round", r.RoundID),
		logger.String("winner", winner),
		logger.Int64("total_coins", r.TotalCoins),
		logger.Int("donors", len(r.Donors)),
		logger.Int("tie_extensions", r.TieExtensions))
	metrics.RecordSinkPublish("ok")
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error { return nil }
