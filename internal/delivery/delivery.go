// Package delivery sends tracking payloads to the backend with retry,
// and parks undeliverable requests in durable storage so they survive a
// restart and go out once connectivity returns.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"wibi/internal/storage"
)

// OfflineKey is the durable storage key holding parked requests.
const OfflineKey = "wibi_offline_queue"

// offlineRetryCeiling drops a parked request after this many failed
// delivery rounds.
const offlineRetryCeiling = 5

// Request is one pending delivery. Body is pre-encoded JSON so a request
// round-trips through storage without re-marshalling the payload.
type Request struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	RetryCount int               `json:"retryCount"`
}

// Outcome classifies a delivery attempt.
type Outcome int

const (
	// Delivered means the backend acknowledged the request.
	Delivered Outcome = iota
	// Retryable means every attempt failed but the request was parked
	// offline for a later round.
	Retryable
	// Permanent means the request was dropped for good.
	Permanent
)

// Options configures a Queue.
type Options struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	OfflineMaxAge time.Duration
	HTTPClient    *http.Client
}

// Queue owns delivery. Enqueued requests are tried immediately by a
// single drain goroutine; exhausted ones move to the offline store.
type Queue struct {
	store  *storage.Store
	logger *slog.Logger
	opts   Options
	client *http.Client

	// sleep is swappable so backoff is observable in tests.
	sleep func(time.Duration)

	mu       sync.Mutex
	live     []Request
	draining bool
	online   bool
}

func NewQueue(store *storage.Store, logger *slog.Logger, opts Options) *Queue {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Queue{
		store:  store,
		logger: logger,
		opts:   opts,
		client: client,
		sleep:  time.Sleep,
		online: true,
	}
}

// Enqueue accepts a request for delivery and starts the drain loop when
// none is running. It never blocks on network I/O.
func (q *Queue) Enqueue(req Request) {
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}

	q.mu.Lock()
	if !q.online {
		q.mu.Unlock()
		q.park(req)
		return
	}
	q.live = append(q.live, req)
	start := !q.draining
	if start {
		q.draining = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// drain delivers live requests in FIFO order until the queue empties.
// Only one drain goroutine runs at a time. When connectivity drops
// mid-drain the remaining live requests are parked durably so the next
// offline replay picks them up.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if !q.online {
			pending := q.live
			q.live = nil
			q.draining = false
			q.mu.Unlock()
			for _, req := range pending {
				q.park(req)
			}
			return
		}
		if len(q.live) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		req := q.live[0]
		q.live = q.live[1:]
		q.mu.Unlock()

		if outcome := q.execute(req); outcome == Retryable {
			req.RetryCount++
			q.park(req)
		}
	}
}

// execute attempts delivery with exponential backoff between attempts.
func (q *Queue) execute(req Request) Outcome {
	var lastErr error
	for attempt := 1; attempt <= q.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			q.sleep(q.opts.BaseDelay * time.Duration(1<<(attempt-2)))
		}
		if err := q.send(req); err == nil {
			return Delivered
		} else {
			lastErr = err
		}
	}

	q.logger.Warn("delivery failed, parking request",
		slog.String("url", req.URL),
		slog.Int("attempts", q.opts.MaxAttempts),
		slog.Any("error", lastErr))
	return Retryable
}

func (q *Queue) send(req Request) error {
	httpReq, err := http.NewRequestWithContext(context.Background(), req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := q.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}

// park appends a request to the durable offline store.
func (q *Queue) park(req Request) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.loadOffline()
	queue = append(queue, req)
	q.store.Set(OfflineKey, queue, storage.SetOptions{})
	q.logger.Debug("parked offline request",
		slog.String("url", req.URL),
		slog.Int("queued", len(queue)))
}

func (q *Queue) loadOffline() []Request {
	var queue []Request
	q.store.Get(OfflineKey, &queue)
	return queue
}

// DrainOffline replays parked requests. Requests older than the offline
// age limit or past the retry ceiling are dropped; the rest that still
// fail are re-parked with a bumped count.
func (q *Queue) DrainOffline() {
	q.mu.Lock()
	queue := q.loadOffline()
	if len(queue) == 0 {
		q.mu.Unlock()
		return
	}
	q.store.Remove(OfflineKey)
	q.mu.Unlock()

	now := time.Now().UnixMilli()
	for _, req := range queue {
		if now-req.Timestamp > q.opts.OfflineMaxAge.Milliseconds() {
			q.logger.Debug("dropping stale offline request", slog.String("url", req.URL))
			continue
		}
		if req.RetryCount >= offlineRetryCeiling {
			q.logger.Debug("dropping exhausted offline request", slog.String("url", req.URL))
			continue
		}
		if outcome := q.execute(req); outcome == Retryable {
			req.RetryCount++
			q.park(req)
		}
	}
}

// SetOnline records connectivity. An offline-to-online transition
// triggers an offline replay.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	q.mu.Unlock()

	if online && !wasOnline {
		q.logger.Debug("connectivity restored, replaying offline queue")
		go q.DrainOffline()
	}
}

// Flush parks all still-live requests durably, for shutdown. They are
// replayed on the next start.
func (q *Queue) Flush() {
	q.mu.Lock()
	pending := q.live
	q.live = nil
	q.mu.Unlock()

	for _, req := range pending {
		q.park(req)
	}
}

// PendingOffline reports how many requests are parked.
func (q *Queue) PendingOffline() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.loadOffline())
}
