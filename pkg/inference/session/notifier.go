package session

import (
	"context"

	"github.com/go-go-golems/ai-threads/pkg/inference/engine"
	"github.com/rs/zerolog/log"
)

// Notification is a transient, user-visible failure report.
type Notification struct {
	ThreadID string
	Failure  engine.FailureClass
	Message  string
	Err      error
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// LogNotifier writes notifications to the global logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) {
	log.Error().
		Err(n.Err).
		Str("thread_id", n.ThreadID).
		Str("failure", string(n.Failure)).
		Msg(n.Message)
}
