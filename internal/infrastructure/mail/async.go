package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async hands each message to a goroutine and returns immediately. Delivery
// errors are logged, never returned.
type Async struct {
	next    Mailer
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Mailer, timeout time.Duration) *Async {
	return &Async{next: next, timeout: timeout}
}

func (a *Async) SendEmail(_ context.Context, to, subject, body string) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		// Detached from the request: the response may be written before delivery.
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.next.SendEmail(ctx, to, subject, body); err != nil {
			slog.Warn("email delivery failed", "to", to, "subject", subject, "err", err)
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (a *Async) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
