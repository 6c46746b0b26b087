package events

import (
	"go.uber.org/zap"
)

// LogSink writes every published envelope to a structured logger. It
// satisfies the lifecycle Service contract: Start blocks until Stop.
type LogSink struct {
	sub    *Subscription
	logger *zap.Logger
}

// NewLogSink subscribes to bus.
//
// Precondition: bus and logger must be non-nil.
func NewLogSink(bus *Bus, logger *zap.Logger) *LogSink {
	return &LogSink{sub: bus.Subscribe(256, nil), logger: logger}
}

// Start logs envelopes until the subscription is closed.
func (s *LogSink) Start() error {
	for env := range s.sub.C() {
		s.logger.Info("notification",
			zap.Uint64("seq", env.Seq),
			zap.String("op", env.Op),
			zap.String("event", env.Event.Name()),
			zap.String("client", env.Event.Client().String()),
			zap.Any("fields", env.Event.Fields()),
		)
	}
	return nil
}

// Stop closes the subscription, ending Start.
func (s *LogSink) Stop() {
	s.sub.Close()
}
