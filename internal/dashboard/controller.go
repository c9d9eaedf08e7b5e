// Package dashboard polls the backend and maintains the published display model.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/conntop-web/internal/snapshot"
)

// DefaultInterval is the delay between the end of one poll and the start of the next.
const DefaultInterval = time.Second

// failureLogEvery throttles warnings during a long outage.
const failureLogEvery = 30

// Source produces snapshots.
type Source interface {
	Fetch(ctx context.Context) (snapshot.Snapshot, error)
}

// Stats summarises poll activity.
type Stats struct {
	Polls               uint64        `json:"polls"`
	Failures            uint64        `json:"failures"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccess         time.Time     `json:"last_success"`
	LastDuration        time.Duration `json:"last_duration"`
}

// Option customises a Controller.
type Option func(*Controller)

// WithLookup replaces the inode-to-process correlation strategy.
func WithLookup(lookup Lookup) Option {
	return func(c *Controller) {
		if lookup != nil {
			c.lookup = lookup
		}
	}
}

// WithClock overrides the time source used to stamp models.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller owns the polling cadence and the published display model.
type Controller struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
	lookup   Lookup
	now      func() time.Time

	mu          sync.RWMutex
	results     Model
	published   bool
	stats       Stats
	subscribers map[*subscriber]struct{}
}

// NewController builds a Controller around a snapshot source.
func NewController(source Source, interval time.Duration, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Controller{
		source:      source,
		interval:    interval,
		logger:      logger,
		lookup:      LinearLookup{},
		now:         time.Now,
		results:     EmptyModel(),
		subscribers: make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Interval returns the configured poll delay.
func (c *Controller) Interval() time.Duration {
	return c.interval
}

// Run polls until the context is cancelled. Each cycle fetches once, publishes
// on success, and arms the next cycle only after the fetch has settled, so
// requests never overlap. Failures leave the published model untouched.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("polling started", "interval", c.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("polling stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-timer.C:
			_ = c.Refresh(ctx)
			timer.Reset(c.interval)
		}
	}
}

// StartPolling runs the poll loop in the background and returns its handle.
func (c *Controller) StartPolling(ctx context.Context) *Poller {
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		p.err = c.Run(ctx)
	}()
	return p
}

// Refresh performs one fetch and publishes the result on success.
func (c *Controller) Refresh(ctx context.Context) error {
	start := time.Now()
	snap, err := c.source.Fetch(ctx)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		c.recordFailure(err, elapsed)
		return err
	}

	model := NewModel(snap, c.now().UTC())
	c.publish(model, elapsed)
	return nil
}

// Results returns the currently published display model.
func (c *Controller) Results() Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.results
}

// Ready reports whether at least one poll has succeeded.
func (c *Controller) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published
}

// Stats returns a copy of the poll counters.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// FindProcess names the process owning the socket inode in the current model,
// or returns "" when none does.
func (c *Controller) FindProcess(inode snapshot.Inode) string {
	model := c.Results()
	return ProcessLabel(c.lookup, model.Processes, inode)
}

// Rows renders the current model for table views.
func (c *Controller) Rows() []Row {
	return BuildRows(c.Results(), c.lookup)
}

// RowsFor renders a model with the controller's lookup strategy.
func (c *Controller) RowsFor(model Model) []Row {
	return BuildRows(model, c.lookup)
}

// Subscribe registers a listener that receives every newly published model.
// The current model is delivered immediately once one has been published.
func (c *Controller) Subscribe() (<-chan Model, func()) {
	sub := newSubscriber()

	c.mu.Lock()
	c.subscribers[sub] = struct{}{}
	if c.published {
		sub.send(c.results)
	}
	c.mu.Unlock()

	unsubscribe := func() {
		c.removeSubscriber(sub)
	}
	return sub.channel(), unsubscribe
}

func (c *Controller) publish(model Model, elapsed time.Duration) {
	c.mu.Lock()
	recovered := c.stats.ConsecutiveFailures
	c.results = model
	c.published = true
	c.stats.Polls++
	c.stats.ConsecutiveFailures = 0
	c.stats.LastError = ""
	c.stats.LastSuccess = model.FetchedAt
	c.stats.LastDuration = elapsed

	targets := make([]*subscriber, 0, len(c.subscribers))
	for sub := range c.subscribers {
		targets = append(targets, sub)
	}
	c.mu.Unlock()

	if recovered > 0 {
		c.logger.Info("backend recovered", "failed_polls", recovered)
	}

	for _, sub := range targets {
		sub.send(model)
	}
}

func (c *Controller) recordFailure(err error, elapsed time.Duration) {
	c.mu.Lock()
	c.stats.Polls++
	c.stats.Failures++
	c.stats.ConsecutiveFailures++
	c.stats.LastError = err.Error()
	c.stats.LastDuration = elapsed
	streak := c.stats.ConsecutiveFailures
	c.mu.Unlock()

	if streak == 1 || streak%failureLogEvery == 0 {
		c.logger.Warn("poll failed", "err", err, "consecutive_failures", streak)
		return
	}
	c.logger.Debug("poll failed", "err", err, "consecutive_failures", streak)
}

func (c *Controller) removeSubscriber(sub *subscriber) {
	c.mu.Lock()
	delete(c.subscribers, sub)
	c.mu.Unlock()
	sub.close()
}

// Poller is the cancellation handle of a background poll loop.
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
}

// Done is closed once the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Err returns the loop's exit error once Done is closed.
func (p *Poller) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

type subscriber struct {
	ch     chan Model
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch: make(chan Model, 1),
	}
}

func (s *subscriber) channel() <-chan Model {
	return s.ch
}

func (s *subscriber) send(model Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- model:
		return
	default:
		// Drop oldest to make room for the new model.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- model:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
