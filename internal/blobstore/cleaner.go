package blobstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Cleaner deletes blobs of removed reports in the background. Failures are
// logged and counted, never surfaced to the caller that deleted the report.
type Cleaner struct {
	store    Store
	log      zerolog.Logger
	failures prometheus.Counter
	timeout  time.Duration

	queue chan string
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewCleaner starts a single worker. failures may be nil.
func NewCleaner(store Store, log zerolog.Logger, queueSize int, failures prometheus.Counter) *Cleaner {
	if queueSize <= 0 {
		queueSize = 64
	}
	c := &Cleaner{
		store:    store,
		log:      log,
		failures: failures,
		timeout:  30 * time.Second,
		queue:    make(chan string, queueSize),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// Enqueue schedules keys for deletion. Empty keys are skipped. When the queue
// is full the key is dropped and counted as a failure.
func (c *Cleaner) Enqueue(keys ...string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		select {
		case c.queue <- key:
		default:
			c.fail(key, errors.New("cleanup queue full"))
		}
	}
}

func (c *Cleaner) run() {
	defer c.wg.Done()
	for key := range c.queue {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		err := c.store.Delete(ctx, key)
		cancel()
		if err != nil && !errors.Is(err, ErrNotFound) {
			c.fail(key, err)
			continue
		}
		c.log.Debug().Str("key", key).Msg("blob removed")
	}
}

func (c *Cleaner) fail(key string, err error) {
	c.log.Warn().Err(err).Str("key", key).Msg("failed to remove blob")
	if c.failures != nil {
		c.failures.Inc()
	}
}

// Close stops accepting keys and waits for the queue to drain or ctx to end.
func (c *Cleaner) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
