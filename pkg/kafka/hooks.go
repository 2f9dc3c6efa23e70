package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	applogger "SignalDesk/pkg/logger"
)

// ConsumerHook observes every handling attempt. An error from Before skips the handler and
// counts as a failed attempt.
type ConsumerHook interface {
	Before(ctx context.Context, km kafka.Message) (context.Context, error)
	After(ctx context.Context, km kafka.Message, attempt int, err error)
}

// HookError is an error raised around a handler rather than by it. Code classifies it,
// e.g. ERR_PANIC.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *HookError) Unwrap() error { return e.Err }

// HookChain runs Before in order and After in reverse. A panicking hook is recovered; in
// Before it becomes an ERR_PANIC HookError.
type HookChain []ConsumerHook

// NewHookChain drops nil hooks.
func NewHookChain(hooks ...ConsumerHook) HookChain {
	out := make(HookChain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (hc HookChain) Before(ctx context.Context, km kafka.Message) (_ context.Context, err error) {
	for _, h := range hc {
		ctx, err = safeBefore(h, ctx, km)
		if err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

func (hc HookChain) After(ctx context.Context, km kafka.Message, attempt int, err error) {
	for i := len(hc) - 1; i >= 0; i-- {
		safeAfter(hc[i], ctx, km, attempt, err)
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, km kafka.Message) (out context.Context, err error) {
	out = ctx
	defer func() {
		if r := recover(); r != nil {
			out, err = ctx, &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.Before(ctx, km)
}

func safeAfter(h ConsumerHook, ctx context.Context, km kafka.Message, attempt int, err error) {
	defer func() { _ = recover() }()
	h.After(ctx, km, attempt, err)
}

type startKey struct{}

// LoggingHook logs handled messages at debug and failed attempts at warn, with timing.
type LoggingHook struct {
	Log *applogger.Logger
}

func (LoggingHook) Before(ctx context.Context, _ kafka.Message) (context.Context, error) {
	return context.WithValue(ctx, startKey{}, time.Now()), nil
}

func (h LoggingHook) After(ctx context.Context, km kafka.Message, attempt int, err error) {
	if h.Log == nil {
		return
	}
	fields := []applogger.Field{
		applogger.String("topic", km.Topic),
		applogger.Int("partition", km.Partition),
		applogger.Int64("offset", km.Offset),
		applogger.Int("attempt", attempt),
	}
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		fields = append(fields, applogger.Duration("took_ms", time.Since(start)))
	}
	if err != nil {
		h.Log.Warn("kafka message attempt failed", append(fields, applogger.Error(err))...)
		return
	}
	h.Log.Debug("kafka message handled", fields...)
}
