package evaluator

import (
	"fmt"

	"buildgraph/internal/cyclereport"
	"buildgraph/internal/errs"
	"buildgraph/internal/graphstore"
	"buildgraph/internal/key"
	"buildgraph/internal/progress"
)

// readyItem is one entry on the coordinator's ready queue. fresh entries
// (resume == false) name a node that has never been claimed by this run —
// dispatch() decides whether it needs BeginBuild and, for a Dirty node with
// prior deps, whether to attempt change pruning first. resume entries name a
// node already in the Building state whose blocking condition just cleared
// (a dependency resolved, or change pruning was abandoned) — it goes
// straight to a worker.
type readyItem struct {
	k key.Key
	resume bool
}

// start classifies every requested key against its current store snapshot
// and either resolves it immediately (already Done or terminally Error) or
// schedules it.
func (r *run) start(requested []key.Key) {
	for _, k := range requested {
		r.ensureScheduled(k)
	}
}

// drain runs the coordinator loop until no work remains in flight, then
// closes jobsCh and waits for every worker to exit.
func (r *run) drain() {
	for {
		for r.inFlightWorkers < r.numThreads && len(r.ready) > 0 {
			if r.cancelled.Load() {
				break
			}
			item := r.ready[0]
			r.ready = r.ready[1:]
			if item.resume {
				r.sendToWorker(item.k)
			} else {
				r.dispatch(item.k)
			}
		}

		if r.inFlightWorkers == 0 {
			break
		}

		select {
		case res := <-r.resultCh:
			r.inFlightWorkers--
			r.handleResult(res)
		case <-r.ctx.Done():
			r.cancelled.Store(true)
		}
	}
	close(r.jobsCh)
	_ = r.group.Wait()
}

// collect reads the final snapshot of every requested key.
func (r *run) collect(requested []key.Key) Result {
	out := make(Result, len(requested))
	for _, k := range requested {
		snap, ok := r.ev.store.Get(k)
		if !ok {
			out[k] = Entry{Kind: ResultMissing}
			continue
		}
		switch snap.State {
		case graphstore.Done:
			out[k] = Entry{Kind: ResultValue, Value: snap.Value}
		case graphstore.Error:
			out[k] = Entry{Kind: ResultError, Err: snap.Err}
		default:
			out[k] = Entry{Kind: ResultMissing}
		}
	}
	return out
}

// ensureScheduled claims k for this run the first time it is seen (as a
// requested key or as a freshly-discovered dependency) and pushes it onto
// the ready queue if it needs building. Already-claimed, Done, or Error
// nodes are left alone.
func (r *run) ensureScheduled(k key.Key) {
	if r.active[k] {
		return
	}
	snap := r.ev.store.CreateOrGet(k)
	switch snap.State {
	case graphstore.Done, graphstore.Error:
		return
	case graphstore.Building:
		// Already in flight from an earlier ensureScheduled call that this
		// run made against the same key through a different path (e.g. two
		// rdeps discovering a shared dep independently); nothing more to do.
		r.active[k] = true
		return
	default: // Absent, Dirty
		r.active[k] = true
		r.pushReady(readyItem{k: k, resume: false})
	}
}

func (r *run) pushReady(item readyItem) {
	r.ready = append(r.ready, item)
}

// dispatch handles a fresh (never-Building-under-this-run) key popped off
// the ready queue: it begins the build and, if the node carries a prior
// dependency list from before it went Dirty, attempts change pruning
// instead of invoking its Func immediately.
func (r *run) dispatch(k key.Key) {
	if err := r.ev.store.BeginBuild(k); err != nil {
		r.failNode(k, &errs.EngineError{Message: fmt.Sprintf("begin_build failed for %s", k), Cause: err})
		return
	}
	snap, _ := r.ev.store.Get(k)
	if len(snap.Deps) > 0 {
		r.revalidating[k] = true
		r.prevDeps[k] = snap.Deps
		r.prevSigs[k] = r.ev.store.DepFingerprints(k)
		r.registerWaits(k, snap.Deps)
		return
	}
	r.sendToWorker(k)
}

// sendToWorker dispatches an already-Building node to a worker goroutine.
func (r *run) sendToWorker(k key.Key) {
	r.inFlightWorkers++
	r.progress.Enqueueing(k)
	select {
	case r.jobsCh <- k:
	case <-r.groupCtx.Done():
		r.inFlightWorkers--
		r.failNode(k, &errs.Interruption{Message: "evaluation cancelled before dispatch"})
	}
}

// handleResult applies one worker's Outcome to the store and advances the
// waiters it unblocks.
func (r *run) handleResult(res workResult) {
	k := res.k
	switch {
	case res.outcome.IsValue():
		v := res.outcome.Value()
		sigs := make(map[key.Key]key.Fingerprint, len(res.touched))
		for _, d := range res.touched {
			if dsnap, ok := r.ev.store.Get(d); ok && dsnap.State == graphstore.Done {
				sigs[d] = r.ev.registry.Fingerprint(dsnap.Value)
			}
		}
		if err := r.ev.store.Complete(k, v, res.touched, sigs); err != nil {
			r.failNode(k, &errs.EngineError{Message: fmt.Sprintf("complete failed for %s", k), Cause: err})
			return
		}
		r.progress.Evaluated(k, v, progress.BuiltFresh)
		r.onTerminalDone(k)

	case res.outcome.IsMissing():
		delete(r.revalidating, k)
		r.registerWaits(k, res.outcome.MissingDeps())

	default: // Fail
		err := res.outcome.Err()
		nodeErr := &errs.NodeError{Key: k, Code: "EvaluationFailed", Message: err.Error(), Cause: err}
		r.failNode(k, nodeErr)
	}
}

// failNode transitions a Building node to Error and cascades the failure to
// everything waiting on it.
func (r *run) failNode(k key.Key, err error) {
	delete(r.revalidating, k)
	_ = r.ev.store.Fail(k, err)
	r.progress.Evaluated(k, key.Value{}, progress.Failed)
	r.onTerminalError(k, err)
}

func (r *run) onTerminalDone(k key.Key) {
	r.notifyDepResolved(k, true, nil)
}

func (r *run) onTerminalError(k key.Key, err error) {
	if !r.keepGoing {
		r.cancelled.Store(true)
		if r.firstErr == nil {
			r.firstErr = err
		}
	}
	r.notifyDepResolved(k, false, err)
}

// registerWaits records that k now depends (in this run's waits-on graph) on
// deps, short-circuiting on the first already-Error dep or detected cycle,
// and schedules any not-yet-claimed dep. If every dep turns out to already
// be Done, k is resolved immediately rather than left to a notification that
// will never arrive.
func (r *run) registerWaits(k key.Key, deps []key.Key) {
	r.clearWaitEdges(k)

	seen := make(map[key.Key]bool, len(deps))
	count := 0
	for _, dep := range deps {
		if seen[dep] {
			continue
		}
		seen[dep] = true

		depSnap := r.ev.store.CreateOrGet(dep)
		switch depSnap.State {
		case graphstore.Done:
			continue
		case graphstore.Error:
			r.failDueToDependency(k, dep, depSnap.Err)
			return
		default:
			r.addWaitEdge(k, dep)
			count++

			if path := r.findPath(dep, k); path != nil {
				r.failCycle(path, k)
				return
			}
			r.ensureScheduled(dep)
		}
	}

	if count == 0 {
		r.resolveNowReady(k)
		return
	}
	r.waitCount[k] = count
}

func (r *run) addWaitEdge(k, dep key.Key) {
	if r.waitsOn[k] == nil {
		r.waitsOn[k] = make(map[key.Key]bool)
	}
	r.waitsOn[k][dep] = true
	if r.waiters[dep] == nil {
		r.waiters[dep] = make(map[key.Key]bool)
	}
	r.waiters[dep][k] = true
}

func (r *run) clearWaitEdges(k key.Key) {
	for dep := range r.waitsOn[k] {
		delete(r.waiters[dep], k)
	}
	delete(r.waitsOn, k)
	delete(r.waitCount, k)
}

// resolveNowReady is reached when a node's declared deps are all already
// satisfied, either at registration time or via notifyDepResolved ticking
// its waitCount down to zero.
func (r *run) resolveNowReady(k key.Key) {
	if r.revalidating[k] {
		r.finishRevalidation(k)
		return
	}
	r.pushReady(readyItem{k: k, resume: true})
}

// finishRevalidation compares k's prior per-dep fingerprints against the
// dependencies' current values. If every one matches, k is revived Done
// without ever invoking its Func — the change-pruning fast path. Otherwise pruning is abandoned and k is sent to a worker for a
// real invocation.
func (r *run) finishRevalidation(k key.Key) {
	deps := r.prevDeps[k]
	sigs := r.prevSigs[k]
	delete(r.revalidating, k)
	delete(r.prevDeps, k)
	delete(r.prevSigs, k)

	clean := true
	for _, dep := range deps {
		depSnap, ok := r.ev.store.Get(dep)
		if !ok || depSnap.State != graphstore.Done {
			clean = false
			break
		}
		if depSnap.ViaInject {
			// An injected dep is an unconditional new-generation marker, not
			// diffable content — its direct consumer always re-invokes.
			clean = false
			break
		}
		fp := r.ev.registry.Fingerprint(depSnap.Value)
		old, existed := sigs[dep]
		if !existed || old != fp {
			clean = false
			break
		}
	}

	if !clean {
		r.pushReady(readyItem{k: k, resume: true})
		return
	}
	if err := r.ev.store.ReviveClean(k); err != nil {
		r.failNode(k, &errs.EngineError{Message: fmt.Sprintf("revive failed for %s", k), Cause: err})
		return
	}
	snap, _ := r.ev.store.Get(k)
	r.progress.Evaluated(k, snap.Value, progress.ReusedClean)
	r.onTerminalDone(k)
}

// failDueToDependency fails k because one of its deps is already Error —
// discovered synchronously at registration time, so there is no waiter
// bookkeeping to clean up beyond what clearWaitEdges already did for k's own
// not-yet-registered edges.
func (r *run) failDueToDependency(k, cause key.Key, causeErr error) {
	nodeErr := &errs.NodeError{
		Key: k,
		Code: "DependencyFailed",
		Message: fmt.Sprintf("dependency %s failed", cause),
		Cause: causeErr,
		RootCauses: []key.Key{cause},
	}
	r.failNode(k, nodeErr)
}

// notifyDepResolved fans a terminal outcome for dep out to every node
// waiting on it: on success, ticks down waitCount and resolves whichever
// waiters just hit zero; on failure, fails every waiter immediately
// regardless of its remaining waitCount, and recurses through their own
// waiters in turn.
func (r *run) notifyDepResolved(dep key.Key, ok bool, err error) {
	waiters := r.waiters[dep]
	delete(r.waiters, dep)
	delete(r.waitsOn, dep)

	for w := range waiters {
		if inner, exists := r.waitsOn[w]; exists {
			delete(inner, dep)
		}
		if !ok {
			r.failDueToDependency(w, dep, err)
			continue
		}
		r.waitCount[w]--
		if r.waitCount[w] <= 0 {
			delete(r.waitCount, w)
			r.resolveNowReady(w)
		}
	}
}

// findPath returns a path from ->... -> to over the waits-on graph if one
// exists, or nil. Called just after adding the edge k -> dep: a path
// dep ->... -> k means that edge closes a cycle.
func (r *run) findPath(from, to key.Key) []key.Key {
	visited := make(map[key.Key]bool)
	var path []key.Key

	var dfs func(cur key.Key) bool
	dfs = func(cur key.Key) bool {
		if cur == to {
			path = append(path, cur)
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		for next := range r.waitsOn[cur] {
			if dfs(next) {
				path = append(path, cur)
				return true
			}
		}
		return false
	}

	if !dfs(from) {
		return nil
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// failCycle fails every participant with a CycleError, reports it once
// through the reporter, then cascades the failure to whatever (non-
// participant) nodes were waiting on any of them.
func (r *run) failCycle(participants []key.Key, discoveredBy key.Key) {
	canon := cyclereport.Canonicalize(participants)
	cycleErr := &errs.CycleError{Participants: canon}

	if r.ev.reporter != nil {
		r.ev.reporter.Report(discoveredBy, []*errs.CycleError{cycleErr})
	}

	for _, p := range participants {
		r.clearWaitEdges(p)
		delete(r.revalidating, p)
		_ = r.ev.store.FailCycle(p, cycleErr, canon)
		r.progress.Evaluated(p, key.Value{}, progress.Failed)
	}

	if !r.keepGoing {
		r.cancelled.Store(true)
		if r.firstErr == nil {
			r.firstErr = cycleErr
		}
	}

	for _, p := range participants {
		r.notifyDepResolved(p, false, cycleErr)
	}
}
