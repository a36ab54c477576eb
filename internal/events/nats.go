package events

import (
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/jsonx"
	"github.com/affective-thought-kernel/internal/thought"
)

// DefaultSubjectPrefix is prepended to the event type to form the subject.
const DefaultSubjectPrefix = "thoughts"

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes scheduler events as JSON to <prefix>.<event type>.
// Character events are skipped unless IncludeChars is set.
type NATSSink struct {
	pub          Publisher
	prefix       string
	includeChars bool
	logger       *zap.Logger
}

// NewNATSSink creates a sink on pub.
func NewNATSSink(pub Publisher, prefix string, includeChars bool, logger *zap.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSSink{
		pub:          pub,
		prefix:       prefix,
		includeChars: includeChars,
		logger:       logger.Named("nats"),
	}
}

// Subject returns the subject an event of type t is published on.
func (s *NATSSink) Subject(t thought.EventType) string {
	return s.prefix + "." + string(t)
}

// Emit publishes ev. Failures are logged.
func (s *NATSSink) Emit(ev thought.Event) {
	if ev.Type == thought.EventChar && !s.includeChars {
		return
	}
	data, err := jsonx.Marshal(ev)
	if err != nil {
		s.logger.Warn("Failed to encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	if err := s.pub.Publish(s.Subject(ev.Type), data); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("subject", s.Subject(ev.Type)),
			zap.Error(err))
	}
}

// ConnectNATS dials the server at url with reconnects enabled.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("affective-thought-kernel"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}
