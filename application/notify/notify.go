// Package notify carries transient user-facing messages (toasts) from the
// sync engine and project operations to whatever front end is attached.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type is the severity of a notification.
type Type string

const (
	Success Type = "success"
	Error   Type = "error"
	Info    Type = "info"
)

// DefaultDuration is how long a front end should show a notification.
const DefaultDuration = 5 * time.Second

// Notification is one transient message.
type Notification struct {
	ID        string        `json:"id"`
	Type      Type          `json:"type"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}

// New builds a notification with a fresh id.
func New(t Type, message string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Type:      t,
		Message:   message,
		Duration:  DefaultDuration,
		CreatedAt: time.Now(),
	}
}

// Expired reports whether n should no longer be shown at now.
func (n Notification) Expired(now time.Time) bool {
	return now.Sub(n.CreatedAt) >= n.Duration
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Logger writes notifications to a zap logger.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a Notifier backed by logger.
func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Notify(n Notification) {
	fields := []zap.Field{zap.String("notification_id", n.ID), zap.String("type", string(n.Type))}
	if n.Type == Error {
		l.logger.Warn(n.Message, fields...)
		return
	}
	l.logger.Info(n.Message, fields...)
}

// Queue keeps active notifications in arrival order, dropping expired ones
// on read.
type Queue struct {
	mu    sync.Mutex
	items []Notification
	now   func() time.Time
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

func (q *Queue) Notify(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
}

// Active returns the notifications that have not expired.
func (q *Queue) Active() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	kept := q.items[:0]
	for _, n := range q.items {
		if !n.Expired(now) {
			kept = append(kept, n)
		}
	}
	q.items = kept
	return append([]Notification(nil), kept...)
}

// Dismiss removes a notification by id.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}
