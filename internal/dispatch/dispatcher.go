package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// ReplyFunc sends one message back on the request's reply channel.
// Strings are delivered as plain text, anything else as JSON.
type ReplyFunc func(ctx context.Context, v any) error

// Handler processes one decoded command payload. Handlers report problems to
// the caller through reply; they never panic the dispatch loop.
type Handler func(ctx context.Context, data map[string]any, reply ReplyFunc)

// Envelope is the inbound message frame
type Envelope struct {
	Command string         `json:"command"`
	Data    map[string]any `json:"data"`
}

// Dispatcher routes command envelopes to registered handlers
type Dispatcher struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// New creates an empty dispatcher
func New(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds a command name to a handler. Registration happens during
// startup, before the consumer runs, so it needs no locking.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
	d.logger.Info("Command handler registered",
		slog.String("command", name),
	)
}

// Dispatch decodes an envelope and invokes its handler. Malformed messages
// and unknown commands are answered on the reply channel; a panicking handler
// is contained so one failing job cannot take down the dispatch loop.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, reply ReplyFunc) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panicked",
				slog.Any("panic", r),
			)
			_ = reply(ctx, fmt.Sprintf("Internal error: %v", r))
		}
	}()

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		d.logger.Error("Failed to decode message envelope",
			slog.String("error", err.Error()),
		)
		_ = reply(ctx, "Invalid message")
		return
	}

	h, ok := d.handlers[env.Command]
	if !ok {
		d.logger.Warn("Unknown command",
			slog.String("command", env.Command),
		)
		_ = reply(ctx, fmt.Sprintf("Unknown command: %s", env.Command))
		return
	}

	data := env.Data
	if data == nil {
		data = map[string]any{}
	}

	d.logger.Debug("Dispatching command",
		slog.String("command", env.Command),
	)
	h(ctx, data, reply)
}
