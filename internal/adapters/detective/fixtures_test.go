package detective

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

const stateSource = `import operator
from typing import Annotated, Dict, List
from pydantic import BaseModel
from typing_extensions import TypedDict


class Evidence(BaseModel):
    goal: str
    found: bool


class AgentState(TypedDict):
    repo_url: str
    evidences: Annotated[Dict[str, List[Evidence]], operator.ior]
    opinions: Annotated[List[str], operator.add]
`

const graphSource = `from langgraph.graph import StateGraph, START, END
from src.state import AgentState

builder = StateGraph(AgentState)
builder.add_edge(START, "repo_investigator")
builder.add_edge(START, "doc_analyst")
builder.add_edge(["repo_investigator", "doc_analyst"], "evidence_aggregator")
builder.add_conditional_edges("evidence_aggregator", route)
builder.add_edge("chief_justice", END)
`

const toolsSource = `import os
import subprocess
import tempfile

# os.system("never called") lives in a comment
WARNING = "do not eval untrusted input"


def clone(url):
    with tempfile.TemporaryDirectory() as tmp:
        subprocess.run(["git", "clone", url, tmp], check=False)
        subprocess.run("ls " + tmp, shell=True)
        os.system("rm -rf /tmp/x")
`

const judgesSource = `PROSECUTOR = "You are the Prosecutor. Trust no one."
DEFENSE = "You are the Defense attorney. Reward effort."
TECH_LEAD = "You are the Tech Lead. Judge maintainability."


def judge(llm, schema):
    return llm.with_structured_output(schema)
`

// writeTree writes files relative to dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func auditedRepoFiles() map[string]string {
	return map[string]string{
		"src/state.py":        stateSource,
		"src/graph.py":        graphSource,
		"src/tools/repo.py":   toolsSource,
		"src/nodes/judges.py": judgesSource,
		".venv/lib/bad.py":    "import os\nos.system('ignored')\n",
	}
}

func byID(items []core.Evidence) map[string]core.Evidence {
	out := make(map[string]core.Evidence, len(items))
	for _, e := range items {
		out[e.ID] = e
	}
	return out
}
