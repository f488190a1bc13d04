package events

import (
	"sync"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
)

// Subscription receives events of the kinds it was opened for.
type Subscription struct {
	id    uint64
	kinds map[models.EventKind]struct{}
	ch    chan models.Event
	bus   *Bus
	once  sync.Once
}

// C is closed after Unsubscribe or Close.
func (s *Subscription) C() <-chan models.Event { return s.ch }

func (s *Subscription) Unsubscribe() { s.bus.remove(s) }

func (s *Subscription) wants(k models.EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus fans events out to subscribers. Publish never blocks: an event is
// dropped for a subscriber whose buffer is full.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	log     *logger.Logger
	metrics domrepo.Metrics
}

func NewBus(log *logger.Logger, metrics domrepo.Metrics) *Bus {
	return &Bus{subs: make(map[uint64]*Subscription), log: log, metrics: metrics}
}

// Subscribe opens a subscription with a buffer of buf events. No kinds means every kind.
func (b *Bus) Subscribe(buf int, kinds ...models.EventKind) *Subscription {
	if buf <= 0 {
		buf = 1
	}
	s := &Subscription{kinds: make(map[models.EventKind]struct{}, len(kinds)), ch: make(chan models.Event, buf), bus: b}
	for _, k := range kinds {
		s.kinds[k] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// Publish delivers e to every matching subscriber that has room.
func (b *Bus) Publish(e models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if !s.wants(e.Kind) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			if b.metrics != nil {
				b.metrics.RecordEventDropped(string(e.Kind))
			}
			b.log.Debug("event dropped for slow subscriber",
				logger.String("kind", string(e.Kind)),
				logger.String("signal_id", e.SignalID))
		}
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.id]; ok {
		delete(b.subs, s.id)
		s.once.Do(func() { close(s.ch) })
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.once.Do(func() { close(s.ch) })
	}
}
