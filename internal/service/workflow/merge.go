package workflow

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// The reducers below are the only code that mutates AgentState. Each is a
// set union with a canonical tie-break, so folding partitions in any order
// or grouping gives the same state.

// MergeEvidence folds the evidence partitions and the stage's failures into
// the state. Failures become "error" evidence items so later stages can see
// the missing coverage.
func MergeEvidence(state *core.AgentState, partitions []Partition[core.Evidence], failures []core.WorkerFailure) {
	acc := state.Evidence
	for _, p := range partitions {
		acc = ReduceEvidence(acc, p.Items)
	}
	errItems := make([]core.Evidence, 0, len(failures))
	for _, f := range failures {
		errItems = append(errItems, f.AsEvidence())
	}
	state.Evidence = ReduceEvidence(acc, errItems)
	state.Failures = ReduceFailures(state.Failures, failures)
}

// ReduceEvidence returns the union of acc and items keyed by evidence ID.
// Within a category items are sorted by ID. When two items share an ID the
// one with the smallest canonical encoding wins.
func ReduceEvidence(acc map[core.Category][]core.Evidence, items []core.Evidence) map[core.Category][]core.Evidence {
	byID := make(map[string]core.Evidence)
	add := func(e core.Evidence) {
		if prev, ok := byID[e.ID]; ok && !evidenceLess(e, prev) {
			return
		}
		byID[e.ID] = e
	}
	for _, list := range acc {
		for _, e := range list {
			add(e)
		}
	}
	for _, e := range items {
		add(e)
	}

	out := make(map[core.Category][]core.Evidence)
	for _, e := range byID {
		out[e.Category] = append(out[e.Category], e)
	}
	for cat := range out {
		list := out[cat]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return out
}

func evidenceLess(a, b core.Evidence) bool {
	return bytes.Compare(canonical(a), canonical(b)) < 0
}

func canonical(e core.Evidence) []byte {
	// Evidence holds only strings, bools, floats and string slices; encoding cannot fail.
	data, _ := json.Marshal(e)
	return data
}

// MergeOpinions folds the opinion partitions into the state and records the
// stage's failures. Failed judges contribute nothing; synthesis treats them as
// absent votes.
func MergeOpinions(state *core.AgentState, partitions []Partition[core.Opinion], failures []core.WorkerFailure) {
	acc := state.Opinions
	for _, p := range partitions {
		acc = ReduceOpinions(acc, p.Items)
	}
	if acc == nil {
		acc = make(map[string][]core.Opinion)
	}
	state.Opinions = acc
	state.Failures = ReduceFailures(state.Failures, failures)
}

// ReduceOpinions appends items to acc and drops exact duplicates. Each
// dimension's list is sorted by judge, score, rationale and citations.
func ReduceOpinions(acc map[string][]core.Opinion, items []core.Opinion) map[string][]core.Opinion {
	seen := make(map[string]bool)
	out := make(map[string][]core.Opinion)
	add := func(o core.Opinion) {
		key := o.Key()
		if seen[key] {
			return
		}
		seen[key] = true
		out[o.DimensionID] = append(out[o.DimensionID], o)
	}
	for _, list := range acc {
		for _, o := range list {
			add(o)
		}
	}
	for _, o := range items {
		add(o)
	}
	for dim := range out {
		list := out[dim]
		sort.Slice(list, func(i, j int) bool { return list[i].Less(list[j]) })
	}
	return out
}

// ReduceFailures unions failure records, ordered by stage then worker.
func ReduceFailures(acc, failures []core.WorkerFailure) []core.WorkerFailure {
	seen := make(map[core.WorkerFailure]bool, len(acc)+len(failures))
	var out []core.WorkerFailure
	for _, list := range [][]core.WorkerFailure{acc, failures} {
		for _, f := range list {
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.Worker != b.Worker {
			return a.Worker < b.Worker
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return a.Attempts < b.Attempts
	})
	return out
}
