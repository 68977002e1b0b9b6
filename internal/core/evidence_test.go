package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvidenceID(t *testing.T) {
	assert.Equal(t, "repo:git-history", NewEvidenceID("repo", "Git History"))
	assert.Equal(t, "doc:src/state.py", NewEvidenceID("doc", "src/state.py"))
	assert.Equal(t, "vision:diagram-1", NewEvidenceID("vision", "diagram #1!"))
}

func TestConfidenceScale_Normalize(t *testing.T) {
	assert.InDelta(t, 0.5, ConfidenceScale{Min: 0, Max: 10}.Normalize(5), 1e-9)
	assert.InDelta(t, 1.0, ConfidenceScale{Min: 0, Max: 10}.Normalize(12), 1e-9)
	assert.InDelta(t, 0.0, ConfidenceScale{Min: 1, Max: 5}.Normalize(0), 1e-9)
	assert.InDelta(t, 0.7, UnitConfidence().Normalize(0.7), 1e-9)
	// Degenerate scales clamp the raw value.
	assert.InDelta(t, 1.0, ConfidenceScale{}.Normalize(3), 1e-9)
}

func TestWorkerFailure_AsEvidence(t *testing.T) {
	f := WorkerFailure{Stage: "evidence", Worker: "vision", Reason: "timeout", Attempts: 2}
	e := f.AsEvidence()
	assert.True(t, e.IsError())
	assert.Equal(t, "error:vision", e.ID)
	assert.Equal(t, "vision", e.Producer)
	assert.Equal(t, "timeout", e.Rationale)
}

func TestEvidenceSnapshot_IsReadOnly(t *testing.T) {
	src := map[Category][]Evidence{
		"security": {{ID: "repo:unsafe", Category: "security", Finding: "unsafe-call-detected"}},
		"git":      {{ID: "repo:history", Category: "git"}},
	}
	snap := NewEvidenceSnapshot(src)

	src["security"][0].Finding = "mutated"
	e, ok := snap.Get("repo:unsafe")
	require.True(t, ok)
	assert.Equal(t, "unsafe-call-detected", e.Finding)

	items := snap.InCategory("git")
	items[0].ID = "changed"
	assert.True(t, snap.Has("repo:history"))

	assert.Equal(t, []Category{"git", "security"}, snap.Categories())
	assert.Equal(t, 2, snap.Len())
	assert.Len(t, snap.All(), 2)
}

func TestScale(t *testing.T) {
	s := Scale{Min: 1, Max: 10}
	assert.True(t, s.Valid())
	assert.True(t, s.Contains(1))
	assert.True(t, s.Contains(10))
	assert.False(t, s.Contains(0))
	assert.False(t, s.Contains(11))
	assert.InDelta(t, 0.5, s.Fraction(5.5), 1e-9)
	assert.False(t, Scale{Min: 3, Max: 3}.Valid())
}
