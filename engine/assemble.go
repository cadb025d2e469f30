package engine

import (
	"context"
	"time"

	"github.com/pithecene-io/sluice/chunk"
	"github.com/pithecene-io/sluice/transport"
	"github.com/pithecene-io/sluice/types"
)

// assembler maps assemble responses onto artifact states. All mutation
// happens on the engine goroutine; the assembler itself holds no state
// beyond configuration.
type assembler struct {
	engine           *Engine
	supportsDebugIDs bool

	byChecksum map[string]*artifactState
}

func newAssembler(e *Engine, states []*artifactState, serverOpts *transport.ServerOptions) *assembler {
	byChecksum := make(map[string]*artifactState)
	for _, st := range states {
		if st.chunked != nil {
			byChecksum[st.chunked.Checksum] = st
		}
	}
	return &assembler{
		engine:           e,
		supportsDebugIDs: serverOpts.Supports(transport.CapDebugIDs),
		byChecksum:       byChecksum,
	}
}

// manifests builds the assemble request for every in-flight artifact.
// Debug ids are stripped when the server does not accept them; older
// servers reject unknown manifest fields.
func (a *assembler) manifests(states []*artifactState) map[string]transport.Manifest {
	out := make(map[string]transport.Manifest)
	for _, st := range states {
		if !st.pending() {
			continue
		}
		m := transport.Manifest{
			Name:   st.artifact.Name,
			Chunks: st.chunked.Checksums(),
		}
		if a.supportsDebugIDs {
			m.DebugID = st.artifact.DebugID
		}
		out[st.chunked.Checksum] = m
	}
	return out
}

// apply merges one assemble (or poll) response into the states. It returns
// the chunk checksums the server still wants and the artifacts that came
// back not_found. Checksums the client never submitted are ignored.
func (a *assembler) apply(resp map[string]transport.AssemblyResponse) (stillMissing []string, notFound []*artifactState) {
	e := a.engine
	for sum, r := range resp {
		st, ok := a.byChecksum[sum]
		if !ok || st.done {
			continue
		}

		if r.State != st.state {
			st.state = r.State
			e.opts.Observer.Emit(types.ProgressEvent{
				Kind:         types.ProgressArtifactState,
				Checksum:     sum,
				ArtifactName: st.artifact.Name,
				State:        r.State,
			})
			e.logger.Debug("assembly state", map[string]any{
				"artifact": st.artifact.Name,
				"state":    string(r.State),
			})
		}

		switch r.State {
		case types.AssemblyOk:
			st.finish(types.OutcomeOk, "")
			e.collector.IncArtifactOk()
		case types.AssemblyError:
			detail := r.Detail
			if detail == "" {
				detail = "assembly failed on server"
			}
			st.finish(types.OutcomeAssemblyFailed, detail)
			e.collector.IncArtifactFailed()
			e.logger.Error("assembly failed", map[string]any{
				"artifact": st.artifact.Name,
				"detail":   detail,
			})
		case types.AssemblyNotFound:
			notFound = append(notFound, st)
		default:
			if len(r.MissingChunks) > 0 {
				stillMissing = append(stillMissing, r.MissingChunks...)
			}
		}
	}
	return stillMissing, notFound
}

// assembleAndWait submits assembly and, depending on the wait mode, polls
// until every artifact is terminal or the deadline passes. Fire-and-forget
// returns after the initial submission.
func (e *Engine) assembleAndWait(ctx context.Context, states []*artifactState, index *chunk.Index, diff *diffQuery, sched *uploadScheduler, serverOpts *transport.ServerOptions) error {
	asm := newAssembler(e, states, serverOpts)

	manifests := asm.manifests(states)
	if len(manifests) == 0 {
		return nil
	}

	e.collector.IncAssembleRequest()
	resp, err := e.client.Assemble(ctx, manifests)
	if err != nil {
		e.failPending(states, "assemble request failed: "+err.Error())
		return ctx.Err()
	}
	e.roundTrip(ctx, states, index, diff, sched, asm, resp, true)

	if !e.opts.Wait && e.opts.WaitFor == 0 {
		return nil
	}

	deadline := e.opts.WaitFor
	if deadline == 0 {
		deadline = e.opts.SafetyTimeout
		if serverOpts.MaxWait > 0 {
			if serverCap := time.Duration(serverOpts.MaxWait) * time.Second; serverCap < deadline {
				deadline = serverCap
			}
		}
	}

	state, err := Await(ctx, e.opts.PollInterval, deadline, func(ctx context.Context) (WaitState, error) {
		manifests := asm.manifests(states)
		if len(manifests) == 0 {
			return WaitDone, nil
		}

		e.collector.IncPollRequest()
		resp, err := e.client.Assemble(ctx, manifests)
		if err != nil {
			if transport.IsRetriable(err) {
				e.logger.Warn("poll failed, will retry", map[string]any{"error": err.Error()})
				return WaitPending, nil
			}
			return WaitFailed, err
		}
		e.roundTrip(ctx, states, index, diff, sched, asm, resp, false)

		for _, st := range states {
			if st.pending() {
				return WaitPending, nil
			}
		}
		return WaitDone, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.failPending(states, "assembly polling failed: "+err.Error())
		return nil
	}
	if state == WaitPending {
		// Deadline expired. Unresolved artifacts stay accepted unless the
		// caller asked for strict semantics.
		if e.opts.Strict {
			e.failPending(states, "assembly did not finish before deadline")
		} else {
			e.logger.Info("wait deadline reached, remaining artifacts still processing", nil)
		}
	}
	return nil
}

// roundTrip applies one assemble response and repairs what it reports:
// chunks the server still wants get one more upload round, and not_found
// assemblies get their one automatic restart. When the initial submission
// triggered repairs, the manifest is resubmitted once so fire-and-forget
// batches do not leave the server waiting on chunks.
func (e *Engine) roundTrip(ctx context.Context, states []*artifactState, index *chunk.Index, diff *diffQuery, sched *uploadScheduler, asm *assembler, resp map[string]transport.AssemblyResponse, resubmit bool) {
	stillMissing, notFound := asm.apply(resp)

	repaired := false
	if len(stillMissing) > 0 {
		e.logger.Warn("server reports missing chunks after upload", map[string]any{
			"chunks": len(stillMissing),
		})
		var entries []*chunk.Entry
		for _, sum := range stillMissing {
			if entry := index.Get(sum); entry != nil {
				entry.MarkMissing()
				entries = append(entries, entry)
			}
		}
		e.uploadRound(ctx, states, sched, entries)
		repaired = true
	}
	for _, st := range notFound {
		if e.restartAssembly(ctx, st, index, diff, sched, states) {
			repaired = true
		}
	}

	if repaired && resubmit && ctx.Err() == nil {
		manifests := asm.manifests(states)
		if len(manifests) == 0 {
			return
		}
		e.collector.IncAssembleRequest()
		resp, err := e.client.Assemble(ctx, manifests)
		if err != nil {
			e.failPending(states, "assemble request failed: "+err.Error())
			return
		}
		// No further repair: chunks missing twice in a row point at a
		// server-side store problem a third upload will not fix.
		stillMissing, notFound := asm.apply(resp)
		for _, sum := range stillMissing {
			if entry := index.Get(sum); entry != nil {
				for _, owner := range entry.Owners() {
					if states[owner].pending() {
						states[owner].finish(types.OutcomeAssemblyFailed,
							"server lost uploaded chunks; retry the upload")
						e.collector.IncArtifactFailed()
					}
				}
			}
		}
		for _, st := range notFound {
			e.restartAssembly(ctx, st, index, diff, sched, states)
		}
	}
}

// restartAssembly handles a not_found response: the server lost or expired
// the assembly after accepting it. The artifact gets exactly one automatic
// restart (re-diff, re-upload, resubmit via the next manifest build); a
// second not_found is fatal.
func (e *Engine) restartAssembly(ctx context.Context, st *artifactState, index *chunk.Index, diff *diffQuery, sched *uploadScheduler, states []*artifactState) bool {
	if st.restarted {
		st.finish(types.OutcomeAssemblyFailed, ErrAssemblyLost.Error())
		e.collector.IncArtifactFailed()
		e.logger.Error("assembly lost again after restart", map[string]any{
			"artifact": st.artifact.Name,
		})
		return false
	}
	st.restarted = true
	e.logger.Warn("assembly not found, restarting", map[string]any{
		"artifact": st.artifact.Name,
	})

	sums := st.chunked.Checksums()
	seen := make(map[string]bool, len(sums))
	unique := sums[:0:0]
	for _, sum := range sums {
		if !seen[sum] {
			seen[sum] = true
			unique = append(unique, sum)
		}
	}

	known := diff.known(ctx, unique)
	var entries []*chunk.Entry
	for _, sum := range unique {
		entry := index.Get(sum)
		if entry == nil {
			continue
		}
		if known[sum] {
			entry.MarkPresent()
			continue
		}
		entry.MarkMissing()
		entries = append(entries, entry)
	}
	e.uploadRound(ctx, states, sched, entries)
	return true
}

// uploadRound runs the scheduler over a repair set and fails the owners of
// anything that could not be uploaded.
func (e *Engine) uploadRound(ctx context.Context, states []*artifactState, sched *uploadScheduler, entries []*chunk.Entry) {
	if len(entries) == 0 {
		return
	}
	for idx, detail := range sched.run(ctx, entries) {
		if states[idx].pending() {
			states[idx].finish(types.OutcomeUploadFailed, detail)
			e.collector.IncArtifactFailed()
		}
	}
}

// failPending marks every in-flight artifact failed with the given detail.
func (e *Engine) failPending(states []*artifactState, detail string) {
	for _, st := range states {
		if st.pending() {
			st.finish(types.OutcomeAssemblyFailed, detail)
			e.collector.IncArtifactFailed()
		}
	}
}
