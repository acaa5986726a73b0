// Package notify carries minify failures and warnings from the sync engine to
// whatever is showing them to a user.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/conneroisu/rminify/internal/logging"
	"github.com/google/uuid"
)

// Level is the severity of a Notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one message about one file.
type Notification struct {
	ID      uuid.UUID `json:"id"`
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Level   Level     `json:"level"`
	Time    time.Time `json:"time"`
}

// New returns a Notification stamped with a fresh ID and the current time.
func New(level Level, path, message string) Notification {
	return Notification{
		ID:      uuid.New(),
		Path:    path,
		Message: message,
		Level:   level,
		Time:    time.Now(),
	}
}

// String returns "level: path: message".
func (n Notification) String() string {
	return fmt.Sprintf("%s: %s: %s", n.Level, n.Path, n.Message)
}

// Notifier receives notifications. Implementations must be safe for
// concurrent use and must not block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a plain function to a Notifier.
type Func func(ctx context.Context, n Notification)

// Notify calls f.
func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops every notification.
var Discard Notifier = Func(func(context.Context, Notification) {})

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent("notify")}
}

// Notify logs n at a level matching its severity.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	fields := []interface{}{"path", n.Path, "id", n.ID.String()}
	switch n.Level {
	case LevelError:
		l.logger.Error(ctx, nil, n.Message, fields...)
	case LevelWarning:
		l.logger.Warn(ctx, nil, n.Message, fields...)
	default:
		l.logger.Info(ctx, n.Message, fields...)
	}
}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// Notify forwards n to every non-nil notifier.
func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, target := range m {
		if target != nil {
			target.Notify(ctx, n)
		}
	}
}
