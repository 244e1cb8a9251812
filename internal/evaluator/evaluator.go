// Package evaluator implements C4, the core: a memoizing, dynamically
// dependency-discovering, bounded-concurrency scheduler over the graph
// store, with change pruning and cycle detection.
package evaluator

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"buildgraph/internal/cyclereport"
	"buildgraph/internal/errs"
	"buildgraph/internal/graphstore"
	"buildgraph/internal/key"
	"buildgraph/internal/progress"
)

// Evaluator drives evaluations against one graph store and one registry.
// It holds no state between Evaluate calls — all scheduling state lives in
// a fresh run value per call — so a single Evaluator is safe to keep across
// builds.
type Evaluator struct {
	store *graphstore.Store
	registry *key.Registry
	reporter *cyclereport.Reporter
}

// New returns an Evaluator over store using registry to resolve keys.
// reporter may be nil to disable cycle diagnostics (cycles are still
// detected and surfaced as errors; only the human-readable report is
// skipped).
func New(store *graphstore.Store, registry *key.Registry, reporter *cyclereport.Reporter) *Evaluator {
	return &Evaluator{store: store, registry: registry, reporter: reporter}
}

// Options configures one Evaluate call.
type Options struct {
	KeepGoing bool
	NumThreads int
	Progress progress.Receiver
}

// ResultKind classifies one requested key's outcome.
type ResultKind int

const (
	ResultValue ResultKind = iota
	ResultError
	ResultMissing
)

// Entry is one requested key's outcome.
type Entry struct {
	Kind ResultKind
	Value key.Value
	Err error
}

// Result maps every requested key to its outcome.
type Result map[key.Key]Entry

// Evaluate computes values for every key in requested, scheduling their
// transitive dependencies as discovered and returning once no work remains.
// Each requested key then has a value or an error, or is reported Missing
// when fail-fast mode or cancellation stopped the run before it was built.
func (ev *Evaluator) Evaluate(ctx context.Context, requested []key.Key, opts Options) Result {
	if opts.NumThreads <= 0 {
		opts.NumThreads = 1
	}
	recv := opts.Progress
	if recv == nil {
		recv = progress.NoOp{}
	}

	r := newRun(ctx, ev, opts, recv)
	r.start(requested)
	r.drain()

	return r.collect(requested)
}

func newRun(ctx context.Context, ev *Evaluator, opts Options, recv progress.Receiver) *run {
	r := &run{
		ctx: ctx,
		ev: ev,
		keepGoing: opts.KeepGoing,
		numThreads: opts.NumThreads,
		progress: recv,
		active: make(map[key.Key]bool),
		revalidating: make(map[key.Key]bool),
		prevDeps: make(map[key.Key][]key.Key),
		prevSigs: make(map[key.Key]map[key.Key]key.Fingerprint),
		waitsOn: make(map[key.Key]map[key.Key]bool),
		waiters: make(map[key.Key]map[key.Key]bool),
		waitCount: make(map[key.Key]int),
		jobsCh: make(chan key.Key),
		resultCh: make(chan workResult),
	}
	r.cancelled.Store(false)

	r.group, r.groupCtx = errgroup.WithContext(ctx)
	for i := 0; i < r.numThreads; i++ {
		r.group.Go(func() error {
			r.workerLoop()
			return nil
		})
	}
	return r
}

type workResult struct {
	k key.Key
	outcome key.Outcome
	touched []key.Key
}

// run holds all scheduling state for a single Evaluate call. Every map here
// is touched only by the coordinator goroutine (the one running drain()),
// so none of it needs its own lock — only the graphstore.Store, which is
// touched concurrently by workers, is internally synchronized.
type run struct {
	ctx context.Context
	ev *Evaluator

	keepGoing bool
	numThreads int
	progress progress.Receiver

	ready []readyItem
	active map[key.Key]bool

	inFlightWorkers int

	// revalidation (change pruning)
	revalidating map[key.Key]bool
	prevDeps map[key.Key][]key.Key
	prevSigs map[key.Key]map[key.Key]key.Fingerprint

	// waits-on graph (also the cycle-detection auxiliary structure)
	waitsOn map[key.Key]map[key.Key]bool
	waiters map[key.Key]map[key.Key]bool
	waitCount map[key.Key]int

	cancelled atomic.Bool
	firstErr error

	group *errgroup.Group
	groupCtx context.Context
	jobsCh chan key.Key
	resultCh chan workResult
}

func (r *run) workerLoop() {
	for {
		k, ok := <-r.jobsCh
		if !ok {
			return
		}
		e := newEnv(r.ev.store, &r.cancelled)
		outcome := r.invokeSafely(k, e)
		select {
		case r.resultCh <- workResult{k: k, outcome: outcome, touched: e.touched}:
		case <-r.groupCtx.Done():
			return
		}
	}
}

func (r *run) invokeSafely(k key.Key, e *env) (outcome key.Outcome) {
	fn, ok := r.ev.registry.Lookup(k.Family())
	if !ok {
		return key.Fail(&errs.EngineError{Message: "no evaluator function registered for family " + string(k.Family())})
	}
	defer func() {
		if rec := recover(); rec != nil {
			outcome = key.Fail(&errs.EngineError{Message: "evaluator function panicked", Cause: panicError{rec}})
		}
	}()
	return fn(k, e)
}

type panicError struct{ v any }

func (p panicError) Error() string {
	if err, ok := p.v.(error); ok {
		return "panic: " + err.Error()
	}
	return fmt.Sprintf("panic: %v", p.v)
}
