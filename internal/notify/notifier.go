// Package notify fans trading alerts out to Telegram and Discord. Each
// sender is rate limited so a burst of alerts cannot trip the provider's
// own limits, and events can be filtered per deployment.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Event types understood by the senders.
const (
	EventTrade     = "trade"
	EventBreaker   = "circuit_breaker"
	EventError     = "error"
	EventLifecycle = "lifecycle"
)

// maxRetryWait bounds how long a throttled send waits before its one retry.
const maxRetryWait = 5 * time.Second

// Message is one alert.
type Message struct {
	Event string
	Title string
	Body  string
	At    time.Time
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

type limitedSender struct {
	Sender
	limiter *rate.Limiter
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards events in the allowed set; an empty set allows everything.
type Notifier struct {
	senders []limitedSender
	events  map[string]bool
	now     func() time.Time
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders. Each sender may send
// one message per second with a burst of five.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	ls := make([]limitedSender, 0, len(senders))
	for _, s := range senders {
		ls = append(ls, limitedSender{Sender: s, limiter: rate.NewLimiter(rate.Every(time.Second), 5)})
	}
	return &Notifier{
		senders: ls,
		events:  allowed,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends a notification if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, Message{Event: event, Title: title, Body: message, At: n.now()})
}

// send delivers once, retrying a single time when the provider throttled
// us with a short enough Retry-After.
func (n *Notifier) send(ctx context.Context, s limitedSender, msg Message) error {
	err := s.Send(ctx, msg)
	var derr *DeliveryError
	if !errors.As(err, &derr) || derr.RetryAfter <= 0 || derr.RetryAfter > maxRetryWait {
		return err
	}
	n.logger.WarnContext(ctx, "sender throttled, retrying",
		slog.String("sender", s.Name()),
		slog.Duration("retry_after", derr.RetryAfter),
	)
	t := time.NewTimer(derr.RetryAfter)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	case <-t.C:
	}
	return s.Send(ctx, msg)
}

// dispatch delivers to every sender. One failing sender does not stop the
// others; the failures are joined.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if err := n.send(ctx, s, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", msg.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
