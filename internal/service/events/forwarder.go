package events

import (
	"context"
	"sync"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
)

// Forwarder drains a subscription into an EventPublisher on its own goroutine.
type Forwarder struct {
	name    string
	sub     *Subscription
	sink    domrepo.EventPublisher
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup
}

func NewForwarder(name string, sub *Subscription, sink domrepo.EventPublisher, timeout time.Duration, log *logger.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{name: name, sub: sub, sink: sink, timeout: timeout, log: log.With(logger.String("forwarder", name))}
}

// Start returns immediately. The loop ends when ctx is done or the subscription closes.
func (f *Forwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-f.sub.C():
				if !ok {
					return
				}
				f.forward(ctx, e)
			}
		}
	}()
}

func (f *Forwarder) forward(ctx context.Context, e models.Event) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.sink.PublishEvent(ctx, e); err != nil {
		f.log.Warn("event forward failed",
			logger.String("kind", string(e.Kind)),
			logger.String("signal_id", e.SignalID),
			logger.Error(err))
	}
}

// Stop unsubscribes and waits for the loop to exit.
func (f *Forwarder) Stop() {
	f.sub.Unsubscribe()
	f.wg.Wait()
}
