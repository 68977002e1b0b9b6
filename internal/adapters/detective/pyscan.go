package detective

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// maxSourceBytes skips generated or vendored blobs.
const maxSourceBytes = 1 << 20

var skippedDirs = map[string]bool{
	".git": true, ".venv": true, "venv": true, "env": true, "node_modules": true,
	"__pycache__": true, ".tox": true, "site-packages": true, "build": true, "dist": true,
}

// typedStateBases are superclasses that make a class a typed state model.
var typedStateBases = []string{"BaseModel", "TypedDict", "pydantic.BaseModel", "typing.TypedDict", "typing_extensions.TypedDict"}

// reducerMarkers appear inside Annotated[...] when a field has a merge reducer.
var reducerMarkers = []string{"operator.add", "operator.ior", "add_messages", "operator.or_"}

var unsafeCalls = map[string]bool{
	"os.system": true, "os.popen": true, "eval": true, "exec": true,
	"commands.getoutput": true, "pickle.loads": true,
}

var personaNames = []string{"prosecutor", "defense", "tech lead"}

// Location is a file:line reference inside the checkout.
type Location struct {
	File string
	Line int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Edge is a graph edge declared with add_edge.
type Edge struct {
	From string
	To   string
}

// UnsafeCall is a call that can execute arbitrary commands or code.
type UnsafeCall struct {
	Call string
	At   Location
}

// PythonScan is the structural summary of a repository's Python sources.
type PythonScan struct {
	Files            int
	TypedState       []Location
	TypedStateSource string
	Reducers         []Location
	StateGraphs      []Location
	Edges            []Edge
	ConditionalEdges int
	Unsafe           []UnsafeCall
	Sandboxed        []Location
	Structured       []Location
	Personas         map[string]Location
}

// FanOut reports whether any node, START included, has two or more outgoing edges.
func (s *PythonScan) FanOut() bool {
	return maxDegree(s.Edges, func(e Edge) string { return e.From }) >= 2
}

// FanIn reports whether any node has two or more incoming edges.
func (s *PythonScan) FanIn() bool {
	return maxDegree(s.Edges, func(e Edge) string { return e.To }) >= 2
}

func maxDegree(edges []Edge, key func(Edge) string) int {
	counts := make(map[string]int)
	best := 0
	for _, e := range edges {
		k := key(e)
		counts[k]++
		if counts[k] > best {
			best = counts[k]
		}
	}
	return best
}

// ScanPython parses every Python file under root with tree-sitter. Matching
// on the syntax tree keeps comments and string literals from producing
// false positives.
func ScanPython(ctx context.Context, root string) (*PythonScan, error) {
	scan := &PythonScan{Personas: make(map[string]Location)}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".py") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(files)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil || info.Size() > maxSourceBytes {
			continue
		}
		source, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		tree, err := parser.ParseCtx(ctx, nil, source)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		rel, _ := filepath.Rel(root, path)
		v := &pyVisitor{scan: scan, source: source, file: filepath.ToSlash(rel)}
		v.walk(tree.RootNode())
		tree.Close()
		scan.Files++
	}
	return scan, nil
}

type pyVisitor struct {
	scan   *PythonScan
	source []byte
	file   string
}

func (v *pyVisitor) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(v.source[n.StartByte():n.EndByte()])
}

func (v *pyVisitor) at(n *sitter.Node) Location {
	return Location{File: v.file, Line: int(n.StartPoint().Row) + 1}
}

func (v *pyVisitor) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "class_definition":
		v.classDef(n)
	case "call":
		v.call(n)
	case "assignment":
		if typ := n.ChildByFieldName("type"); typ != nil && isReducerAnnotation(v.text(typ)) {
			v.scan.Reducers = append(v.scan.Reducers, v.at(n))
		}
	case "string":
		lower := strings.ToLower(v.text(n))
		for _, p := range personaNames {
			if _, seen := v.scan.Personas[p]; !seen && strings.Contains(lower, p) {
				v.scan.Personas[p] = v.at(n)
			}
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		v.walk(n.Child(i))
	}
}

func (v *pyVisitor) classDef(n *sitter.Node) {
	name := v.text(n.ChildByFieldName("name"))
	supers := v.text(n.ChildByFieldName("superclasses"))
	typed := name == "AgentState"
	for _, base := range typedStateBases {
		if strings.Contains(supers, base) {
			typed = true
			break
		}
	}
	if !typed {
		return
	}
	v.scan.TypedState = append(v.scan.TypedState, v.at(n))
	if v.scan.TypedStateSource == "" {
		v.scan.TypedStateSource = v.text(n)
	}
}

func (v *pyVisitor) call(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	name := v.text(fn)
	args := n.ChildByFieldName("arguments")

	switch {
	case unsafeCalls[name]:
		v.scan.Unsafe = append(v.scan.Unsafe, UnsafeCall{Call: name, At: v.at(n)})
	case strings.HasPrefix(name, "subprocess.") && v.hasKeyword(args, "shell", "True"):
		v.scan.Unsafe = append(v.scan.Unsafe, UnsafeCall{Call: name + "(shell=True)", At: v.at(n)})
	case strings.HasPrefix(name, "tempfile.") || name == "TemporaryDirectory" || name == "mkdtemp":
		v.scan.Sandboxed = append(v.scan.Sandboxed, v.at(n))
	case name == "StateGraph" || strings.HasSuffix(name, ".StateGraph"):
		v.scan.StateGraphs = append(v.scan.StateGraphs, v.at(n))
	case strings.HasSuffix(name, ".with_structured_output") || strings.HasSuffix(name, ".bind_tools"):
		v.scan.Structured = append(v.scan.Structured, v.at(n))
	case strings.HasSuffix(name, ".add_conditional_edges"):
		v.scan.ConditionalEdges++
	case strings.HasSuffix(name, ".add_edge"):
		v.addEdges(args)
	}
}

func (v *pyVisitor) positional(args *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	if args == nil {
		return out
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		if c.Type() == "keyword_argument" || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (v *pyVisitor) hasKeyword(args *sitter.Node, key, value string) bool {
	if args == nil {
		return false
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		if c.Type() != "keyword_argument" {
			continue
		}
		if v.text(c.ChildByFieldName("name")) == key && v.text(c.ChildByFieldName("value")) == value {
			return true
		}
	}
	return false
}

// addEdges records add_edge(u, v). A list as the first argument declares a
// join, one edge per listed source.
func (v *pyVisitor) addEdges(args *sitter.Node) {
	pos := v.positional(args)
	if len(pos) < 2 {
		return
	}
	to := nodeName(v.text(pos[1]))
	if pos[0].Type() == "list" {
		for i := 0; i < int(pos[0].NamedChildCount()); i++ {
			v.scan.Edges = append(v.scan.Edges, Edge{From: nodeName(v.text(pos[0].NamedChild(i))), To: to})
		}
		return
	}
	v.scan.Edges = append(v.scan.Edges, Edge{From: nodeName(v.text(pos[0])), To: to})
}

func nodeName(s string) string {
	s = strings.Trim(s, `"'`)
	if s == "__start__" || strings.EqualFold(s, "start") {
		return "START"
	}
	return s
}

func isReducerAnnotation(typ string) bool {
	if !strings.Contains(typ, "Annotated[") {
		return false
	}
	for _, m := range reducerMarkers {
		if strings.Contains(typ, m) {
			return true
		}
	}
	return false
}
