// Package notify delivers text messages to a push-notification service.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

const (
	ProviderLine     = "line"
	ProviderTelegram = "telegram"

	DefaultSendTimeout = 10 * time.Second
)

// Sender posts one message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// SendError reports a single message that was not delivered.
type SendError struct {
	Provider string
	Status   int // HTTP status when the service answered, 0 otherwise
	Err      error
}

func (e *SendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s send: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s send: %v", e.Provider, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a send that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// bounded applies a per-message deadline.
type bounded struct {
	next    Sender
	timeout time.Duration
}

// WithTimeout bounds every Send on s by d. A non-positive d selects DefaultSendTimeout.
func WithTimeout(s Sender, d time.Duration) Sender {
	if d <= 0 {
		d = DefaultSendTimeout
	}
	return &bounded{next: s, timeout: d}
}

func (b *bounded) Send(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Send(ctx, text)
}

// limited paces sends through a token bucket shared by all callers.
type limited struct {
	next    Sender
	limiter *rate.Limiter
}

// RateLimited allows at most perSec sends per second with a burst of perSec.
// perSec <= 0 returns s unchanged.
func RateLimited(s Sender, perSec int) Sender {
	if perSec <= 0 {
		return s
	}
	return &limited{next: s, limiter: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

func (l *limited) Send(ctx context.Context, text string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return &SendError{Provider: "ratelimit", Err: err}
	}
	return l.next.Send(ctx, text)
}
