// Package cyclereport implements C6: formatting of detected dependency
// cycles using per-key-family heuristics, and deduplicated emission through
// an eventsink.Sink.
package cyclereport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"buildgraph/internal/errs"
	"buildgraph/internal/eventsink"
	"buildgraph/internal/key"
)

// Formatter renders one family-specific, human-readable explanation of a
// cycle, given its canonicalized participant list.
type Formatter func(participants []key.Key) string

// Reporter selects a Formatter per key family and avoids reporting the
// same cycle twice within one build.
type Reporter struct {
	mu sync.Mutex
	formatters map[key.Family]Formatter
	reported map[string]bool
	sink eventsink.Sink
}

// New returns a Reporter that emits through sink.
func New(sink eventsink.Sink) *Reporter {
	return &Reporter{
		formatters: make(map[key.Family]Formatter),
		reported: make(map[string]bool),
		sink: sink,
	}
}

// Register installs a family-specific Formatter. Families with no
// registered Formatter fall back to genericFormat.
func (r *Reporter) Register(family key.Family, fn Formatter) *Reporter {
	r.formatters[family] = fn
	return r
}

// Reset clears the dedup memory — called once per façade reset(), since a fresh evaluator means cycles should be reportable again.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = make(map[string]bool)
}

// Report formats and emits each cycle not already reported this build, in
// the context of topLevel — the originally requested key whose transitive
// evaluation surfaced them.
func (r *Reporter) Report(topLevel key.Key, cycles []*errs.CycleError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range cycles {
		canon := canonicalForm(c.Participants)
		if r.reported[canon] {
			continue
		}
		r.reported[canon] = true

		family := key.Family("")
		if len(c.Participants) > 0 {
			family = c.Participants[0].Family()
		}
		formatter, ok := r.formatters[family]
		if !ok {
			formatter = genericFormat
		}
		msg := fmt.Sprintf("cycle detected while evaluating %s:\n%s", topLevel, formatter(c.Participants))
		r.sink.Report(msg)
	}
}

// Canonicalize rotates participants to start at its lexicographically
// smallest element, so two reports of the same cycle compare equal
// regardless of which node the evaluator happened to detect it from.
func Canonicalize(participants []key.Key) []key.Key {
	if len(participants) == 0 {
		return nil
	}
	minIdx := 0
	for i, k := range participants {
		if key.Less(k, participants[minIdx]) {
			minIdx = i
		}
	}
	out := make([]key.Key, len(participants))
	for i := range participants {
		out[i] = participants[(minIdx+i)%len(participants)]
	}
	return out
}

func canonicalForm(participants []key.Key) string {
	canon := Canonicalize(participants)
	parts := make([]string, len(canon))
	for i, k := range canon {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

func genericFormat(participants []key.Key) string {
	sorted := append([]key.Key(nil), participants ...)
	sort.Slice(sorted, func(i, j int) bool { return key.Less(sorted[i], sorted[j]) })
	var b strings.Builder
	for _, k := range Canonicalize(participants) {
		fmt.Fprintf(&b, " -> %s\n", k)
	}
	return b.String()
}
