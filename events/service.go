// Package events is the process-wide event service: a priority queue
// drained by a single consumer, type-specific handlers, a subscription
// registry, retry with exponential backoff and a bounded history.
package events

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrServiceClosed is returned by AddEvent after Close.
var ErrServiceClosed = errors.New("event service closed")

// Handler is the type-specific processor for an event.
type Handler func(ctx context.Context, e Event) error

// Subscriber receives every event of the types it subscribed to.
type Subscriber func(e Event) error

// Config tunes the service.
type Config struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseBackoff    time.Duration `mapstructure:"base_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	MaxHistory     int           `mapstructure:"max_history"`
	ImmediateLevel Level         `mapstructure:"immediate_level"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		PollInterval:   250 * time.Millisecond,
		MaxAttempts:    3,
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		MaxHistory:     1000,
		ImmediateLevel: LevelHigh,
	}
}

// Validate checks the tuning is usable.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("events poll_interval must be > 0")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("events max_attempts must be >= 1")
	}
	if c.BaseBackoff <= 0 || c.MaxBackoff < c.BaseBackoff {
		return fmt.Errorf("events backoff must satisfy 0 < base_backoff <= max_backoff")
	}
	if c.MaxHistory < 1 {
		return fmt.Errorf("events max_history must be >= 1")
	}
	return nil
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now for timestamps and backoff scheduling.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

type subscription struct {
	id    int
	types map[Type]bool
	fn    Subscriber
}

// Service is safe for concurrent AddEvent/Publish from any colony tick.
// Only one goroutine drains the queue at a time.
type Service struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex // guards queue, seq, closed
	queue  eventHeap
	seq    uint64
	closed bool

	regMu    sync.RWMutex // guards handlers and subs
	handlers map[Type]Handler
	subs     []subscription
	nextSub  int

	histMu  sync.Mutex // guards history and stats
	history []Event
	stats   Stats

	drainMu sync.Mutex // single consumer
	wake    chan struct{}
}

// New builds a service.
func New(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
		handlers: make(map[Type]Handler),
		wake:     make(chan struct{}, 1),
		stats:    newStats(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// RegisterHandler installs the handler for t, replacing any previous one.
func (s *Service) RegisterHandler(t Type, h Handler) {
	s.regMu.Lock()
	s.handlers[t] = h
	s.regMu.Unlock()
}

// Subscribe registers fn for the given types and returns a function that
// removes the subscription.
func (s *Service) Subscribe(fn Subscriber, types ...Type) func() {
	if len(types) == 0 {
		panic("must subscribe to at least one event type")
	}
	set := make(map[Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}

	s.regMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, types: set, fn: fn})
	s.regMu.Unlock()

	return func() {
		s.regMu.Lock()
		defer s.regMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish wraps payload in an event for colonyID and queues it.
func (s *Service) Publish(colonyID string, level Level, payload Payload) (Event, error) {
	return s.AddEvent(Event{ColonyID: colonyID, Level: level, Payload: payload})
}

// PublishDrafts queues every draft, returning the first error.
func (s *Service) PublishDrafts(drafts []Draft) error {
	var errs []error
	for _, d := range drafts {
		if _, err := s.Publish(d.ColonyID, d.Level, d.Payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddEvent queues e. Missing ID, type, timestamp and priority are filled
// in. Events at or above the immediate level wake the consumer right away
// instead of waiting for the next poll.
func (s *Service) AddEvent(e Event) (Event, error) {
	if e.Payload == nil {
		return Event{}, fmt.Errorf("add event: nil payload")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.Type = e.Payload.EventType()
	if e.Level == 0 {
		e.Level = LevelMedium
	}
	e.Priority = e.Level.Priority()
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Attempts, e.Processed, e.Failed, e.LastError = 0, false, false, ""

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Event{}, ErrServiceClosed
	}
	s.seq++
	e.seq = s.seq
	ev := e
	heap.Push(&s.queue, &ev)
	s.mu.Unlock()

	s.histMu.Lock()
	s.stats.Published++
	s.stats.ByType[e.Type]++
	s.stats.ByLevel[e.Level.String()]++
	s.histMu.Unlock()

	if e.Level >= s.cfg.ImmediateLevel {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return e.public(), nil
}

// Pending returns the queue depth, including events waiting out a backoff.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Close rejects further events. Queued events can still be drained.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Run drains the queue every poll interval, and immediately when a
// high-priority event arrives, until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info("event service started", "poll", s.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("event service stopped", "pending", s.Pending())
			return
		case <-ticker.C:
			s.Drain(ctx)
		case <-s.wake:
			s.Drain(ctx)
		}
	}
}

// Drain processes every event that is due, highest priority first, and
// returns how many reached a final state (processed or failed).
func (s *Service) Drain(ctx context.Context) int {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	now := s.now()
	s.mu.Lock()
	var due, later []*Event
	for s.queue.Len() > 0 {
		e := heap.Pop(&s.queue).(*Event)
		if e.notBefore.After(now) {
			later = append(later, e)
			continue
		}
		due = append(due, e)
	}
	for _, e := range later {
		heap.Push(&s.queue, e)
	}
	s.mu.Unlock()

	final := 0
	for _, e := range due {
		if ctx.Err() != nil {
			s.requeue(e)
			continue
		}
		if s.process(ctx, e, now) {
			final++
		}
	}
	return final
}

// process runs one attempt. It returns true when the event is finished.
func (s *Service) process(ctx context.Context, e *Event, now time.Time) bool {
	e.Attempts++
	err := s.dispatch(ctx, e)
	if err == nil {
		e.Processed = true
		e.LastError = ""
		s.archive(e)
		return true
	}

	e.LastError = err.Error()
	if e.Attempts >= s.cfg.MaxAttempts {
		e.Failed = true
		s.logger.Error("event failed", "id", e.ID, "type", e.Type, "colony", e.ColonyID, "attempts", e.Attempts, "error", err)
		s.archive(e)
		return true
	}

	backoff := s.backoff(e.Attempts)
	e.notBefore = now.Add(backoff)
	s.logger.Warn("event retry scheduled", "id", e.ID, "type", e.Type, "attempt", e.Attempts, "backoff", backoff, "error", err)
	s.histMu.Lock()
	s.stats.Retries++
	s.histMu.Unlock()
	s.requeue(e)
	return false
}

// dispatch runs the handler once and then notifies subscribers that have
// not seen the event yet, so a retry never re-delivers to a subscriber
// that already succeeded.
func (s *Service) dispatch(ctx context.Context, e *Event) error {
	s.regMu.RLock()
	h := s.handlers[e.Type]
	var subs []subscription
	for _, sub := range s.subs {
		if sub.types[e.Type] {
			subs = append(subs, sub)
		}
	}
	s.regMu.RUnlock()

	if !e.handled {
		if h != nil {
			if err := safeCall(func() error { return h(ctx, e.public()) }); err != nil {
				return fmt.Errorf("handler: %w", err)
			}
		}
		e.handled = true
	}

	var errs []error
	for _, sub := range subs {
		if e.delivered[sub.id] {
			continue
		}
		if err := safeCall(func() error { return sub.fn(e.public()) }); err != nil {
			errs = append(errs, fmt.Errorf("subscriber %d: %w", sub.id, err))
			continue
		}
		if e.delivered == nil {
			e.delivered = make(map[int]bool)
		}
		e.delivered[sub.id] = true
	}
	return errors.Join(errs...)
}

func (s *Service) requeue(e *Event) {
	s.mu.Lock()
	heap.Push(&s.queue, e)
	s.mu.Unlock()
}

func (s *Service) backoff(attempt int) time.Duration {
	d := s.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	return d
}

func (s *Service) archive(e *Event) {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	if e.Processed {
		s.stats.Processed++
	} else {
		s.stats.Failed++
	}
	s.stats.totalAttempts += e.Attempts

	s.history = append(s.history, e.public())
	if over := len(s.history) - s.cfg.MaxHistory; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// public strips queue bookkeeping from a copy of e.
func (e *Event) public() Event {
	out := *e
	out.delivered = nil
	return out
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// eventHeap orders by priority (highest first), then timestamp, then
// insertion order.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].Timestamp.Equal(h[j].Timestamp) {
		return h[i].Timestamp.Before(h[j].Timestamp)
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(*Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
