// Package trigger implements the recalculation protocol: domain events that
// fire when submissions or responses change, handlers that decide whether a
// score must be recomputed, and bulk recalculation across a survey.
package trigger

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/presales-cli/internal/model"
)

// Event is a domain event that may require a score recalculation.
type Event interface {
	SubmissionID() string
}

// SubmissionCompleted fires when a prospect finishes a questionnaire.
type SubmissionCompleted struct {
	Submission string
}

func (e SubmissionCompleted) SubmissionID() string { return e.Submission }

// ResponseChanged fires when an individual answer is created or updated.
type ResponseChanged struct {
	Submission string
	QuestionID string
}

func (e ResponseChanged) SubmissionID() string { return e.Submission }

// ResponseDeleted fires when an answer is removed.
type ResponseDeleted struct {
	Submission string
	QuestionID string
}

func (e ResponseDeleted) SubmissionID() string { return e.Submission }

// SubmissionStatusChanged fires when an admin toggles a submission between
// ACTIVE, DISABLED, and DELETED.
type SubmissionStatusChanged struct {
	Submission string
	OldStatus  model.SubmissionStatus
	NewStatus  model.SubmissionStatus
}

func (e SubmissionStatusChanged) SubmissionID() string { return e.Submission }

// Handler processes one event. Returning an error stops delivery: later
// handlers do not run for that event.
type Handler func(ctx context.Context, ev Event) error

// Bus delivers events synchronously to subscribed handlers, in subscription
// order. Publish returns the first handler error so callers inside a
// transaction can roll back on failure.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			zap.L().Error("event handler failed",
				zap.String("submission_id", ev.SubmissionID()),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}
