// Package buildtrace records a deterministic, canonical log of one
// evaluate_* call's node transitions, independent of goroutine scheduling
// or wall-clock timing: observational only, and byte-stable across repeat
// runs over an unchanged graph.
package buildtrace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"buildgraph/internal/graphstore"
	"buildgraph/internal/key"
	"buildgraph/internal/progress"
)

// EventKind is the stable discriminator for one Event. These strings are
// part of the trace's canonical bytes; do not rename them.
type EventKind string

const (
	EventInvalidated EventKind = "NodeInvalidated"
	EventReused EventKind = "NodeReused"
	EventBuilt EventKind = "NodeBuilt"
	EventFailed EventKind = "NodeFailed"
)

// Event is one logical transition for one key.
type Event struct {
	Kind EventKind `json:"kind"`
	Key string `json:"key"`
}

// Trace is the canonical record of one evaluation: an unordered bag of
// events that Canonicalize sorts into a total order so two runs over an
// unchanged graph produce byte-identical output.
type Trace struct {
	Events []Event
}

func kindOrder(k EventKind) int {
	switch k {
	case EventInvalidated:
		return 10
	case EventReused:
		return 20
	case EventBuilt:
		return 30
	case EventFailed:
		return 40
	default:
		return 1000
	}
}

// Canonicalize sorts events by (key, kind) so the resulting order does not
// depend on which goroutine reported what first.
func (t *Trace) Canonicalize() {
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return kindOrder(a.Kind) < kindOrder(b.Kind)
	})
}

// CanonicalJSON returns the canonical JSON encoding of a copy of t, leaving
// t itself untouched.
func (t Trace) CanonicalJSON() ([]byte, error) {
	cp := Trace{Events: append([]Event(nil), t.Events ...)}
	cp.Canonicalize()

	var buf bytes.Buffer
	buf.WriteString(`{"events":[`)
	for i, e := range cp.Events {
		if e.Kind == "" {
			return nil, errors.New("buildtrace: event kind is required")
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}

// Hash returns the sha256 hex digest of the canonical JSON encoding.
func (t Trace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Recorder implements progress.Receiver, buffering every callback into a
// Trace. Callbacks may arrive concurrently from different goroutines
// (progress.Receiver's documented contract), so appends are mutex-guarded.
type Recorder struct {
	mu sync.Mutex
	trace Trace
}

// NewRecorder returns an empty Recorder ready to pass as an
// evaluator.Options.Progress value.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Invalidated(k key.Key, _ graphstore.State) {
	r.append(Event{Kind: EventInvalidated, Key: k.String()})
}

func (r *Recorder) Enqueueing(key.Key) {}

func (r *Recorder) Evaluated(k key.Key, _ key.Value, outcome progress.Outcome) {
	switch outcome {
	case progress.ReusedClean:
		r.append(Event{Kind: EventReused, Key: k.String()})
	case progress.BuiltFresh:
		r.append(Event{Kind: EventBuilt, Key: k.String()})
	case progress.Failed:
		r.append(Event{Kind: EventFailed, Key: k.String()})
	}
}

func (r *Recorder) append(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.Events = append(r.trace.Events, e)
}

// Trace returns a snapshot of the events recorded so far.
func (r *Recorder) Trace() Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Trace{Events: append([]Event(nil), r.trace.Events ...)}
}
