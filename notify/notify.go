package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	UserID  string    `json:"-"`
	At      time.Time `json:"at"`
}

// Sink delivers notifications without waiting for the user to see them.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// LogSink writes every notification to the log.
type LogSink struct {
	log *zerolog.Logger
}

func NewLogSink(log *zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, n Notification) {
	ev := s.log.Info()
	if n.Kind == KindError || n.Kind == KindWarning {
		ev = s.log.Warn()
	}
	ev.Str("kind", string(n.Kind)).Str("userid", n.UserID).Msg(n.Message)
}

// Multi fans a notification out to every sink.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}
