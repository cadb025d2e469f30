package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pithecene-io/sluice/chunk"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/transport"
	"github.com/pithecene-io/sluice/types"
)

const (
	defaultMaxAttempts = 5
	defaultRetryBase   = 500 * time.Millisecond
	maxBackoff         = 10 * time.Second
)

// uploadScheduler drains a set of missing chunks through a bounded pool of
// workers. Each worker holds at most one chunk payload in memory at a time,
// so resident upload memory is concurrency times chunk size regardless of
// batch size.
type uploadScheduler struct {
	client      *transport.Client
	uploadURL   string
	compression transport.Compression
	concurrency int
	maxAttempts int
	retryBase   time.Duration

	logger    *log.Logger
	collector *metrics.Collector
	observer  types.Observer
}

// run uploads every entry not already present. It returns per-artifact
// failure details for artifacts owning a chunk that exhausted its retries;
// artifacts not in the map had all their chunks land.
//
// A failed chunk poisons only its owners. Other workers keep draining the
// queue so unrelated artifacts still complete.
func (s *uploadScheduler) run(ctx context.Context, entries []*chunk.Entry) map[int]string {
	if len(entries) == 0 {
		return nil
	}
	queue := make(chan *chunk.Entry)

	var mu sync.Mutex
	failed := make(map[int]string)

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range queue {
				if ctx.Err() != nil {
					continue
				}
				if e.Present() {
					continue
				}
				if err := s.uploadOne(ctx, e); err != nil {
					s.collector.IncChunkFailed()
					s.logger.Error("chunk upload failed", map[string]any{
						"checksum": e.Checksum,
						"error":    err.Error(),
					})
					mu.Lock()
					for _, owner := range e.Owners() {
						if _, ok := failed[owner]; !ok {
							failed[owner] = err.Error()
						}
					}
					mu.Unlock()
				}
			}
		}()
	}

	for _, e := range entries {
		queue <- e
	}
	close(queue)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		mu.Lock()
		for _, e := range entries {
			if e.Present() {
				continue
			}
			for _, owner := range e.Owners() {
				if _, ok := failed[owner]; !ok {
					failed[owner] = err.Error()
				}
			}
		}
		mu.Unlock()
	}
	return failed
}

// uploadOne pushes a single chunk, retrying transient failures with
// exponential backoff. Hard failures (4xx, malformed responses) abort
// immediately.
func (s *uploadScheduler) uploadOne(ctx context.Context, e *chunk.Entry) error {
	data, err := e.ReadPayload()
	if err != nil {
		return &UploadError{Checksum: e.Checksum, Attempts: 0, Err: err}
	}
	payload := []transport.ChunkPayload{{Checksum: e.Checksum, Data: data}}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.collector.IncUploadRequest()
		lastErr = s.client.UploadChunks(ctx, s.uploadURL, payload, s.compression)
		if lastErr == nil {
			e.MarkPresent()
			s.collector.AddChunkUploaded(e.Length)
			s.observer.Emit(types.ProgressEvent{
				Kind:     types.ProgressChunkUploaded,
				Checksum: e.Checksum,
				Bytes:    e.Length,
			})
			return nil
		}
		if !transport.IsRetriable(lastErr) {
			return &UploadError{Checksum: e.Checksum, Attempts: attempt, Err: lastErr}
		}
		if attempt == s.maxAttempts {
			break
		}

		s.collector.IncUploadRetry()
		wait := s.backoff(attempt)
		s.logger.Warn("chunk upload retry", map[string]any{
			"checksum": e.Checksum,
			"attempt":  attempt,
			"backoff":  wait.String(),
			"error":    lastErr.Error(),
		})
		select {
		case <-ctx.Done():
			return &UploadError{Checksum: e.Checksum, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
	return &UploadError{Checksum: e.Checksum, Attempts: s.maxAttempts, Err: lastErr}
}

// backoff doubles per attempt from the base, capped, with up to 50% random
// jitter so retries from concurrent workers spread out. Doubling stops at
// the cap rather than shifting by the attempt count, so large attempt
// numbers cannot overflow the duration.
func (s *uploadScheduler) backoff(attempt int) time.Duration {
	d := s.retryBase
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d + time.Duration(rand.Int63n(int64(d/2+1)))
}
