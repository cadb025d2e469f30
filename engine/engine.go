package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/sluice/chunk"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/transport"
	"github.com/pithecene-io/sluice/types"
)

const (
	defaultPollInterval  = time.Second
	defaultSafetyTimeout = 15 * time.Minute
)

// Options tunes a batch. The zero value means "defer to the server": chunk
// size, concurrency and size ceiling come from ServerOptions unless
// overridden here.
type Options struct {
	// Wait blocks until every assembly reaches a terminal state, bounded
	// only by SafetyTimeout (and the server's maxWait, if lower).
	Wait bool
	// WaitFor bounds waiting to a duration. Expiry is not a failure:
	// unresolved artifacts are reported as accepted. Ignored when zero.
	WaitFor time.Duration
	// Strict turns deadline expiry into a failure for unresolved artifacts.
	Strict bool

	// Concurrency overrides the server-suggested upload parallelism.
	Concurrency int
	// ChunkSize overrides the server-preferred chunk size.
	ChunkSize int64
	// MaxFileSize tightens the per-artifact size ceiling. The effective
	// ceiling is the stricter of this and the server's.
	MaxFileSize int64
	// DisableDedup skips all diff queries and uploads every chunk.
	DisableDedup bool

	// MaxAttempts is the per-chunk upload attempt budget.
	MaxAttempts int
	// RetryBase is the first retry backoff; it doubles per attempt.
	RetryBase time.Duration
	// PollInterval is the assembly poll cadence.
	PollInterval time.Duration
	// SafetyTimeout caps blocking-mode waits.
	SafetyTimeout time.Duration

	// Observer receives progress events; nil disables them.
	Observer types.Observer
}

// Engine runs upload batches. One Engine serves one batch; it is not
// reusable because the metrics collector accumulates per batch.
type Engine struct {
	client    *transport.Client
	meta      *types.BatchMeta
	opts      Options
	logger    *log.Logger
	collector *metrics.Collector
}

// New creates an engine for one batch.
func New(client *transport.Client, meta *types.BatchMeta, opts Options, logger *log.Logger, collector *metrics.Collector) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.SafetyTimeout <= 0 {
		opts.SafetyTimeout = defaultSafetyTimeout
	}
	return &Engine{
		client:    client,
		meta:      meta,
		opts:      opts,
		logger:    logger,
		collector: collector,
	}
}

// artifactState tracks one artifact through the pipeline. Mutated only from
// the engine's own goroutine; upload workers report per-artifact failures
// through the scheduler's result map instead.
type artifactState struct {
	idx      int
	artifact *types.Artifact
	chunked  *chunk.Chunked

	// last assembly state observed from the server.
	state types.AssemblyState
	// restarted is set after the one automatic not_found restart.
	restarted bool

	// done marks a decided terminal outcome.
	done   bool
	status types.OutcomeStatus
	detail string
}

// finish records the terminal outcome. First decision wins.
func (s *artifactState) finish(status types.OutcomeStatus, detail string) {
	if s.done {
		return
	}
	s.done = true
	s.status = status
	s.detail = detail
}

// pending reports whether the artifact is still in flight: chunked
// successfully and no terminal outcome yet.
func (s *artifactState) pending() bool {
	return s.chunked != nil && !s.done
}

// UploadAndAssemble runs the whole pipeline for a batch of artifacts and
// returns one outcome per artifact, in input order.
//
// It returns an error only when the batch could not run at all (server
// options unreachable, context canceled). Per-artifact failures are carried
// in the result; check BatchResult.Failed.
func (e *Engine) UploadAndAssemble(ctx context.Context, artifacts []*types.Artifact) (*types.BatchResult, error) {
	start := time.Now()

	serverOpts, err := e.client.ChunkUploadOptions(ctx)
	if err != nil {
		return nil, err
	}

	chunkSize := serverOpts.ChunkSize
	if e.opts.ChunkSize > 0 {
		chunkSize = e.opts.ChunkSize
	}
	if chunkSize > serverOpts.MaxRequestSize {
		chunkSize = serverOpts.MaxRequestSize
	}
	maxFileSize := serverOpts.MaxFileSize
	if e.opts.MaxFileSize > 0 && (maxFileSize == 0 || e.opts.MaxFileSize < maxFileSize) {
		maxFileSize = e.opts.MaxFileSize
	}
	concurrency := serverOpts.Concurrency
	if e.opts.Concurrency > 0 {
		concurrency = e.opts.Concurrency
	}
	compression := transport.BestCompression(serverOpts.Compression)

	e.logger.Info("batch started", map[string]any{
		"artifacts":   len(artifacts),
		"chunk_size":  chunkSize,
		"concurrency": concurrency,
		"compression": compression.String(),
		"hash":        string(serverOpts.HashAlgorithm),
	})

	states := e.prepare(artifacts, chunkSize, maxFileSize, serverOpts.HashAlgorithm)

	index := chunk.NewIndex()
	refs := 0
	for _, st := range states {
		if !st.pending() {
			continue
		}
		index.Insert(st.idx, st.chunked)
		refs += len(st.chunked.Descriptors)
	}
	intraDedup := refs - index.Len()
	e.collector.AddChunksDeduplicated(int64(intraDedup))

	diff := &diffQuery{
		client:    e.client,
		disabled:  e.opts.DisableDedup,
		logger:    e.logger,
		collector: e.collector,
	}
	sched := &uploadScheduler{
		client:      e.client,
		uploadURL:   serverOpts.URL,
		compression: compression,
		concurrency: concurrency,
		maxAttempts: e.opts.MaxAttempts,
		retryBase:   e.opts.RetryBase,
		logger:      e.logger,
		collector:   e.collector,
		observer:    e.opts.Observer,
	}

	e.dedup(ctx, states, index, diff)

	failed := sched.run(ctx, index.Missing())
	for idx, detail := range failed {
		states[idx].finish(types.OutcomeUploadFailed, detail)
		e.collector.IncArtifactFailed()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.assembleAndWait(ctx, states, index, diff, sched, serverOpts); err != nil {
		return nil, err
	}

	return e.aggregate(states, start), nil
}

// prepare sizes, chunks and verifies every artifact, deciding early outcomes
// for oversized, unreadable or mismatched files.
func (e *Engine) prepare(artifacts []*types.Artifact, chunkSize, maxFileSize int64, algo chunk.Algorithm) []*artifactState {
	states := make([]*artifactState, len(artifacts))
	for i, art := range artifacts {
		st := &artifactState{idx: i, artifact: art}
		states[i] = st

		if maxFileSize > 0 && art.Size > maxFileSize {
			detail := fmt.Sprintf("%v: %d bytes, limit %d", ErrArtifactTooLarge, art.Size, maxFileSize)
			st.finish(types.OutcomeSkipped, detail)
			e.collector.IncArtifactSkipped()
			e.logger.Warn("artifact skipped", map[string]any{
				"artifact": art.Name,
				"size":     art.Size,
				"limit":    maxFileSize,
			})
			e.opts.Observer.Emit(types.ProgressEvent{
				Kind:         types.ProgressArtifactSkipped,
				ArtifactName: art.Name,
				Bytes:        art.Size,
			})
			continue
		}

		chunked, err := chunk.NewFromFile(art, chunkSize, algo)
		if err != nil {
			st.finish(types.OutcomeUploadFailed, err.Error())
			e.collector.IncArtifactFailed()
			e.logger.Error("artifact unreadable", map[string]any{
				"artifact": art.Name,
				"error":    err.Error(),
			})
			continue
		}
		if art.Checksum != "" && art.Checksum != chunked.Checksum {
			detail := fmt.Sprintf("%v: expected %s, file hashes to %s",
				ErrChecksumMismatch, art.Checksum, chunked.Checksum)
			st.finish(types.OutcomeUploadFailed, detail)
			e.collector.IncArtifactFailed()
			e.logger.Error("artifact checksum mismatch", map[string]any{
				"artifact": art.Name,
				"expected": art.Checksum,
				"actual":   chunked.Checksum,
			})
			continue
		}
		st.chunked = chunked
	}
	return states
}

// dedup excludes already-known content from upload. Artifacts whose
// whole-file checksum is known short-circuit: none of their exclusively
// owned chunks are diffed. Chunks shared with an unknown artifact are still
// diffed, because chunk retention on the server is independent of assembled
// files.
func (e *Engine) dedup(ctx context.Context, states []*artifactState, index *chunk.Index, diff *diffQuery) {
	var artSums []string
	for _, st := range states {
		if st.pending() {
			artSums = append(artSums, st.chunked.Checksum)
		}
	}
	knownArts := diff.known(ctx, artSums)
	for _, st := range states {
		if st.pending() && knownArts[st.chunked.Checksum] {
			st.state = types.AssemblyOk
		}
	}

	skipped := int64(0)
	var diffSums []string
	for _, entry := range index.Missing() {
		whollyKnown := len(knownArts) > 0
		for _, owner := range entry.Owners() {
			if !knownArts[states[owner].chunked.Checksum] {
				whollyKnown = false
				break
			}
		}
		if whollyKnown {
			entry.MarkPresent()
			skipped++
			e.opts.Observer.Emit(types.ProgressEvent{
				Kind:     types.ProgressChunkSkipped,
				Checksum: entry.Checksum,
				Bytes:    entry.Length,
			})
			continue
		}
		diffSums = append(diffSums, entry.Checksum)
	}

	knownChunks := diff.known(ctx, diffSums)
	for sum := range knownChunks {
		entry := index.Get(sum)
		if entry == nil {
			continue
		}
		entry.MarkPresent()
		skipped++
		e.opts.Observer.Emit(types.ProgressEvent{
			Kind:     types.ProgressChunkSkipped,
			Checksum: sum,
			Bytes:    entry.Length,
		})
	}
	e.collector.AddChunksDeduplicated(skipped)

	e.logger.Debug("dedup complete", map[string]any{
		"known_artifacts": len(knownArts),
		"known_chunks":    skipped,
		"to_upload":       len(index.Missing()),
	})
}

// aggregate builds the batch result. Artifacts still pending at this point
// were accepted by the server but not confirmed terminal; they count as
// accepted, not failed.
func (e *Engine) aggregate(states []*artifactState, start time.Time) *types.BatchResult {
	outcomes := make([]types.ArtifactOutcome, len(states))
	for i, st := range states {
		out := types.ArtifactOutcome{
			Name:    st.artifact.Name,
			DebugID: st.artifact.DebugID,
		}
		if st.chunked != nil {
			out.Checksum = st.chunked.Checksum
		}
		if st.done {
			out.Status = st.status
			out.Detail = st.detail
		} else {
			out.Status = types.OutcomeAccepted
			e.collector.IncArtifactAccepted()
		}
		outcomes[i] = out
	}

	snap := e.collector.Snapshot()
	result := &types.BatchResult{
		BatchID:            e.meta.BatchID,
		Outcomes:           outcomes,
		ChunksUploaded:     snap.ChunksUploaded,
		ChunksDeduplicated: snap.ChunksDeduplicated,
		ChunksFailed:       snap.ChunksFailed,
		BytesUploaded:      snap.BytesUploaded,
		DurationMs:         time.Since(start).Milliseconds(),
	}

	e.logger.Info("batch finished", map[string]any{
		"ok":       snap.ArtifactsOk,
		"accepted": snap.ArtifactsAccepted,
		"skipped":  snap.ArtifactsSkipped,
		"failed":   snap.ArtifactsFailed,
		"uploaded": snap.ChunksUploaded,
		"deduped":  snap.ChunksDeduplicated,
		"bytes":    snap.BytesUploaded,
		"duration": result.DurationMs,
	})
	return result
}
