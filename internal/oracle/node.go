package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

// CallbackFunc is a consumer program's fulfilment handler. accounts are the
// feed's recorded callback accounts.
type CallbackFunc func(ctx context.Context, feed authority.Address, accounts []authority.Address) error

// NodeConfig tunes a Node.
type NodeConfig struct {
	// Workers is the number of fulfilment goroutines. Values < 1 mean 1.
	Workers int
	// Redeliveries is how many extra times each callback is invoked.
	Redeliveries int
	// Delay is waited before fulfilling each request.
	Delay time.Duration
	// Backlog bounds pending dispatches. Values < 1 mean 256.
	Backlog int
}

// Node fulfils dispatched requests. Each request is fulfilled in its own
// ledger operation, after which the feed's callback is invoked
// 1+Redeliveries times, each in the callback's own operation.
type Node struct {
	ledger *ledger.Ledger
	src    Source
	cfg    NodeConfig
	logger *zap.Logger

	mu        sync.RWMutex
	callbacks map[authority.Address]CallbackFunc

	queue    chan Dispatch
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNode creates a Node.
//
// Precondition: l, src and logger must be non-nil.
func NewNode(l *ledger.Ledger, src Source, cfg NodeConfig, logger *zap.Logger) *Node {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Backlog < 1 {
		cfg.Backlog = 256
	}
	if cfg.Redeliveries < 0 {
		cfg.Redeliveries = 0
	}
	return &Node{
		ledger:    l,
		src:       src,
		cfg:       cfg,
		logger:    logger,
		callbacks: make(map[authority.Address]CallbackFunc),
		queue:     make(chan Dispatch, cfg.Backlog),
		stop:      make(chan struct{}),
	}
}

// RegisterCallback routes fulfilments for feeds whose callback targets
// program to fn. Replaces any existing handler.
func (n *Node) RegisterCallback(program authority.Address, fn CallbackFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callbacks[program] = fn
}

// Dispatch enqueues d without blocking. When the backlog is full or the node
// has stopped the request is dropped and left pending.
func (n *Node) Dispatch(d Dispatch) {
	select {
	case <-n.stop:
		n.logger.Warn("oracle node stopped, dropping request",
			zap.String("feed", d.Feed.String()),
			zap.String("request_id", d.RequestID),
		)
		return
	default:
	}
	select {
	case n.queue <- d:
	default:
		n.logger.Warn("oracle backlog full, dropping request",
			zap.String("feed", d.Feed.String()),
			zap.String("request_id", d.RequestID),
			zap.Int("backlog", cap(n.queue)),
		)
	}
}

// Start runs the workers and blocks until Stop.
func (n *Node) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < n.cfg.Workers; i++ {
		n.wg.Add(1)
		go n.work(ctx, i)
	}
	n.logger.Info("oracle node started",
		zap.Int("workers", n.cfg.Workers),
		zap.Int("redeliveries", n.cfg.Redeliveries),
		zap.Duration("delay", n.cfg.Delay),
	)
	<-n.stop
	cancel()
	n.wg.Wait()
	return nil
}

// Stop ends Start. Requests still queued stay pending on their feeds.
func (n *Node) Stop() {
	n.stopOnce.Do(func() { close(n.stop) })
}

func (n *Node) work(ctx context.Context, id int) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-n.queue:
			if n.cfg.Delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(n.cfg.Delay):
				}
			}
			if err := n.Process(ctx, d); err != nil {
				n.logger.Warn("oracle fulfilment failed",
					zap.Int("worker", id),
					zap.String("feed", d.Feed.String()),
					zap.String("request_id", d.RequestID),
					zap.Error(err),
				)
			}
		}
	}
}

// Process fulfils d and delivers the callback synchronously.
//
// Postcondition: Returns the fulfilment error, or the joined errors of every
// failed callback delivery.
func (n *Node) Process(ctx context.Context, d Dispatch) error {
	buf, err := n.src.Randomness(d)
	if err != nil {
		return fmt.Errorf("generating randomness: %w", err)
	}
	var feed Feed
	err = n.ledger.Execute(ctx, "oracle_fulfill", func(tx *ledger.Tx) error {
		var err error
		feed, err = Fulfill(tx, d, buf)
		return err
	})
	if err != nil {
		return fmt.Errorf("fulfilling %s: %w", d.RequestID, err)
	}

	n.mu.RLock()
	cb, ok := n.callbacks[feed.Callback.Program]
	n.mu.RUnlock()
	if !ok {
		n.logger.Warn("no callback registered for feed program",
			zap.String("feed", d.Feed.String()),
			zap.String("program", feed.Callback.Program.String()),
		)
		return nil
	}

	var errs []error
	for attempt := 0; attempt <= n.cfg.Redeliveries; attempt++ {
		start := time.Now()
		err := cb(ctx, d.Feed, feed.Callback.Accounts)
		fields := []zap.Field{
			zap.String("feed", d.Feed.String()),
			zap.String("request_id", d.RequestID),
			zap.Uint64("counter", d.Counter),
			zap.Int("attempt", attempt),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("delivery %d: %w", attempt, err))
			n.logger.Warn("oracle callback failed", append(fields, zap.Error(err))...)
			continue
		}
		n.logger.Debug("oracle callback delivered", fields...)
	}
	return errors.Join(errs...)
}
