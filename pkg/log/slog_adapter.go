package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors lifecycle events to an slog.Logger.
// Useful in development to watch a cart's protocol activity on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("kind", event.Kind.String()),
	}

	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.MACAddress != "" {
		attrs = append(attrs, slog.String("mac", event.MACAddress))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}

	switch event.Kind {
	case KindMessage:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.String("topic", event.Topic),
		)
		if event.Amount != 0 {
			attrs = append(attrs, slog.Int64("amount", event.Amount))
		}
	case KindStateChange:
		attrs = append(attrs,
			slog.String("old_state", event.OldState),
			slog.String("new_state", event.NewState),
		)
	case KindError:
		attrs = append(attrs, slog.String("error", event.Err))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "lifecycle event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
