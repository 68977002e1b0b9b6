package detective

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// Evidence categories emitted by the repository investigator.
const (
	CategoryGit              core.Category = "git"
	CategoryState            core.Category = "state"
	CategoryOrchestration    core.Category = "orchestration"
	CategorySecurity         core.Category = "security"
	CategoryStructuredOutput core.Category = "structured_output"
	CategoryJudicial         core.Category = "judicial"
)

// Findings emitted by the repository investigator.
const (
	FindingCommitProgression = "commit-progression"
	FindingTypedState        = "typed-state"
	FindingStateReducers     = "state-reducers"
	FindingStateGraph        = "state-graph"
	FindingFanOut            = "fan-out"
	FindingFanIn             = "fan-in"
	FindingUnsafeCall        = "unsafe-call-detected"
	FindingSandboxedScratch  = "sandboxed-scratch"
	FindingStructuredOutput  = "structured-output"
	FindingDistinctPersonas  = "distinct-personas"
)

// MinProgressionCommits is the commit count that counts as iterative development.
const MinProgressionCommits = 3

// RepoInvestigator inspects the checkout: git history plus a structural scan
// of its Python sources.
type RepoInvestigator struct {
	historyLimit int
}

// RepoOption configures the investigator.
type RepoOption func(*RepoInvestigator)

// WithHistoryExcerpt sets how many commits are quoted in the git evidence.
func WithHistoryExcerpt(n int) RepoOption {
	return func(r *RepoInvestigator) {
		r.historyLimit = n
	}
}

// NewRepoInvestigator creates the repository producer.
func NewRepoInvestigator(opts ...RepoOption) *RepoInvestigator {
	r := &RepoInvestigator{historyLimit: 10}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements core.EvidenceProducer.
func (r *RepoInvestigator) Name() string { return "repo" }

// ConfidenceScale implements core.EvidenceProducer.
func (r *RepoInvestigator) ConfidenceScale() core.ConfidenceScale { return core.UnitConfidence() }

// Produce implements core.EvidenceProducer.
func (r *RepoInvestigator) Produce(ctx context.Context, target core.TargetSnapshot) ([]core.Evidence, error) {
	if err := requireCheckout(target); err != nil {
		return nil, err
	}

	items := []core.Evidence{r.history(ctx, target.LocalPath)}

	scan, err := ScanPython(ctx, target.LocalPath)
	if err != nil {
		return nil, err
	}
	items = append(items, r.fromScan(scan)...)
	return items, nil
}

func requireCheckout(target core.TargetSnapshot) error {
	if target.LocalPath == "" {
		return core.ErrValidation(core.CodeInvalidTarget, "no local checkout of "+target.RepoURL)
	}
	info, err := os.Stat(target.LocalPath)
	if err != nil || !info.IsDir() {
		return core.ErrValidation(core.CodeInvalidTarget, "checkout not found: "+target.LocalPath)
	}
	return nil
}

func (r *RepoInvestigator) history(ctx context.Context, path string) core.Evidence {
	ev := r.item(CategoryGit, FindingCommitProgression)
	ev.Locations = []string{"git log"}
	ev.Confidence = 1.0

	client, err := git.NewClient(path)
	if err != nil {
		ev.Rationale = "Not a git repository; history unavailable."
		return ev
	}
	commits, err := client.Log(ctx, 0)
	if err != nil {
		ev.Rationale = "Failed to read git log."
		return ev
	}

	// Oldest first, the way the progression reads.
	lines := make([]string, 0, len(commits))
	for i := len(commits) - 1; i >= 0; i-- {
		lines = append(lines, commits[i].ShortHash()+" "+commits[i].Subject)
	}
	if len(lines) > r.historyLimit {
		lines = lines[:r.historyLimit]
	}

	ev.Found = len(commits) >= MinProgressionCommits
	ev.Content = strings.Join(lines, "\n")
	ev.Rationale = fmt.Sprintf("Found %d commits; %d or more show iterative development.", len(commits), MinProgressionCommits)
	if span := git.Span(commits); span > 0 {
		ev.Rationale += fmt.Sprintf(" They span %s.", span.Round(time.Minute))
	}
	if shallow, err := client.IsShallow(ctx); err == nil && shallow {
		ev.Rationale += " History is shallow, so the count is a lower bound."
	}
	return ev
}

func (r *RepoInvestigator) fromScan(scan *PythonScan) []core.Evidence {
	var out []core.Evidence

	typed := r.item(CategoryState, FindingTypedState)
	typed.Found = len(scan.TypedState) > 0
	typed.Content = excerpt(scan.TypedStateSource, 600)
	typed.Locations = locations(scan.TypedState)
	typed.Rationale = fmt.Sprintf("Scanned %d Python files for BaseModel/TypedDict state classes.", scan.Files)
	typed.Confidence = 0.9
	out = append(out, typed)

	reducers := r.item(CategoryState, FindingStateReducers)
	reducers.Found = len(scan.Reducers) > 0
	reducers.Locations = locations(scan.Reducers)
	reducers.Rationale = "Checked Annotated fields for operator.add/operator.ior reducers."
	reducers.Confidence = 0.9
	out = append(out, reducers)

	graph := r.item(CategoryOrchestration, FindingStateGraph)
	graph.Found = len(scan.StateGraphs) > 0
	graph.Locations = locations(scan.StateGraphs)
	graph.Content = formatEdges(scan.Edges)
	graph.Rationale = fmt.Sprintf("StateGraph constructions: %d, edges: %d, conditional edge sets: %d.",
		len(scan.StateGraphs), len(scan.Edges), scan.ConditionalEdges)
	graph.Confidence = 0.8
	out = append(out, graph)

	fanOut := r.item(CategoryOrchestration, FindingFanOut)
	fanOut.Found = scan.FanOut()
	fanOut.Rationale = "A node with two or more outgoing edges runs its successors in parallel."
	fanOut.Confidence = 0.8
	out = append(out, fanOut)

	fanIn := r.item(CategoryOrchestration, FindingFanIn)
	fanIn.Found = scan.FanIn()
	fanIn.Rationale = "A node with two or more incoming edges synchronizes parallel branches."
	fanIn.Confidence = 0.8
	out = append(out, fanIn)

	unsafe := r.item(CategorySecurity, FindingUnsafeCall)
	unsafe.Found = len(scan.Unsafe) > 0
	calls := make([]string, 0, len(scan.Unsafe))
	for _, u := range scan.Unsafe {
		unsafe.Locations = append(unsafe.Locations, u.At.String())
		calls = append(calls, u.Call+" at "+u.At.String())
	}
	unsafe.Content = strings.Join(calls, "\n")
	unsafe.Rationale = "Scanned for os.system, eval, exec and subprocess calls with shell=True."
	unsafe.Confidence = 0.9
	out = append(out, unsafe)

	sandbox := r.item(CategorySecurity, FindingSandboxedScratch)
	sandbox.Found = len(scan.Sandboxed) > 0
	sandbox.Locations = locations(scan.Sandboxed)
	sandbox.Rationale = "Checked for tempfile-based scratch directories."
	sandbox.Confidence = 0.9
	out = append(out, sandbox)

	structured := r.item(CategoryStructuredOutput, FindingStructuredOutput)
	structured.Found = len(scan.Structured) > 0
	structured.Locations = locations(scan.Structured)
	structured.Rationale = "Checked for with_structured_output or bind_tools on model calls."
	structured.Confidence = 0.9
	out = append(out, structured)

	personas := r.item(CategoryJudicial, FindingDistinctPersonas)
	names := make([]string, 0, len(scan.Personas))
	for name, loc := range scan.Personas {
		names = append(names, name)
		personas.Locations = append(personas.Locations, loc.String())
	}
	sort.Strings(names)
	sort.Strings(personas.Locations)
	personas.Found = len(scan.Personas) == len(personaNames)
	personas.Content = strings.Join(names, ", ")
	personas.Rationale = fmt.Sprintf("Found %d of %d persona prompts in string literals.", len(scan.Personas), len(personaNames))
	personas.Confidence = 0.7
	out = append(out, personas)

	return out
}

func (r *RepoInvestigator) item(cat core.Category, finding string) core.Evidence {
	return core.Evidence{
		ID:       core.NewEvidenceID(r.Name(), finding),
		Producer: r.Name(),
		Category: cat,
		Finding:  finding,
	}
}

func locations(locs []Location) []string {
	if len(locs) == 0 {
		return nil
	}
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.String()
	}
	return out
}

func formatEdges(edges []Edge) string {
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = e.From + " -> " + e.To
	}
	return strings.Join(parts, "\n")
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
