package llm

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/testutil"
)

func testSnapshot() core.EvidenceSnapshot {
	unsafe := testutil.Ev("security", "unsafe-call-detected")
	history := testutil.Ev("git", "commit-progression")
	return core.NewEvidenceSnapshot(map[core.Category][]core.Evidence{
		"security": {unsafe},
		"git":      {history},
	})
}

func testPersona(judge string) core.Persona {
	r := testutil.NewTestRubric()
	for _, j := range r.Judges {
		if j.Name == judge {
			return core.Persona{Judge: j.Name, Description: j.Persona, Dimensions: r.Dimensions}
		}
	}
	return core.Persona{Judge: judge, Dimensions: r.Dimensions}
}

func TestJudge_Deliberate(t *testing.T) {
	fake := &fakeChat{content: `{"opinions": [
		{"dimension_id": "safe_tool_engineering", "score": 3, "rationale": "os.system with key sk-abcdefghijklmnopqrstuvwx", "cited_evidence_ids": ["test:unsafe-call-detected"]},
		{"dimension_id": "git_forensic_analysis", "score": 6.6, "rationale": "steady history", "cited_evidence_ids": []}
	]}`}
	cfg := newFakeChat(t, fake)

	judge, err := NewJudge(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, judge.Name())

	opinions, err := judge.Deliberate(context.Background(), testSnapshot(), testPersona(testutil.JudgeProsecutor))
	require.NoError(t, err)
	require.Len(t, opinions, 2)

	assert.Equal(t, testutil.JudgeProsecutor, opinions[0].Judge)
	assert.Equal(t, 3, opinions[0].Score)
	assert.NotContains(t, opinions[0].Rationale, "sk-abcdefghijklmnopqrstuvwx")
	assert.Equal(t, 7, opinions[1].Score)

	req := fake.lastRequest(t)
	assert.Equal(t, "test/model", req.Model)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_object", req.ResponseFormat.Type)
	require.Len(t, req.Messages, 2)
	user := string(req.Messages[1])
	assert.Contains(t, user, "safe_tool_engineering")
	assert.Contains(t, user, "test:unsafe-call-detected")
}

func TestJudge_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		content   string
		category  core.ErrorCategory
		retryable bool
	}{
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error": {"message": "slow down", "type": "rate_limit_error"}}`,
			category:  core.ErrCatRateLimit,
			retryable: true,
		},
		{
			name:      "bad credentials",
			status:    http.StatusUnauthorized,
			body:      `{"error": {"message": "invalid key", "type": "auth_error"}}`,
			category:  core.ErrCatValidation,
			retryable: false,
		},
		{
			name:      "server error",
			status:    http.StatusBadGateway,
			body:      `upstream unavailable`,
			category:  core.ErrCatExecution,
			retryable: true,
		},
		{
			name:      "prose instead of JSON",
			content:   "I think the repository is fine.",
			category:  core.ErrCatValidation,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newFakeChat(t, &fakeChat{status: tt.status, body: tt.body, content: tt.content})
			judge, err := NewJudge(cfg, nil)
			require.NoError(t, err)

			_, err = judge.Deliberate(context.Background(), testSnapshot(), testPersona(testutil.JudgeDefense))
			require.Error(t, err)
			assert.Equal(t, tt.category, core.GetCategory(err), err.Error())
			assert.Equal(t, tt.retryable, core.IsRetryable(err))
		})
	}
}

func TestJudge_NetworkFailureIsRetryable(t *testing.T) {
	judge, err := NewJudge(Config{BaseURL: "http://127.0.0.1:1/v1", APIKey: "k"}, nil)
	require.NoError(t, err)

	_, err = judge.Deliberate(context.Background(), testSnapshot(), testPersona(testutil.JudgeTechLead))
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatNetwork))
	assert.True(t, core.IsRetryable(err))
}

func TestNewJudge_RequiresAPIKey(t *testing.T) {
	_, err := NewJudge(Config{}, nil)
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
}

func TestDecodeOpinions(t *testing.T) {
	t.Run("bare array in a code fence", func(t *testing.T) {
		content := "Here you go:\n```json\n[{\"dimension_id\": \"d1\", \"score\": 4, \"rationale\": \" ok \"}]\n```"
		ops, err := DecodeOpinions("judge", content)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, core.Opinion{Judge: "judge", DimensionID: "d1", Score: 4, Rationale: "ok"}, ops[0])
	})

	t.Run("non-numeric score", func(t *testing.T) {
		_, err := DecodeOpinions("judge", `{"opinions": [{"dimension_id": "d1", "score": "high"}]}`)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "not a number") || strings.Contains(err.Error(), "not a JSON"))
	})

	t.Run("integral float score", func(t *testing.T) {
		ops, err := DecodeOpinions("prosecutor", `{"opinions": [{"dimension_id": "d", "score": 7.0}]}`)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, 7, ops[0].Score)
	})

	t.Run("fractional score is rejected", func(t *testing.T) {
		ops, err := DecodeOpinions("prosecutor", `{"opinions": [{"dimension_id": "d", "score": 7.5}]}`)
		require.Error(t, err)
		assert.Nil(t, ops)
		assert.True(t, core.IsCategory(err, core.ErrCatValidation))
		assert.True(t, core.IsRetryable(err))
		assert.Contains(t, err.Error(), "not a whole number")
	})

	t.Run("unrelated object", func(t *testing.T) {
		_, err := DecodeOpinions("judge", `{"verdict": "guilty"}`)
		require.Error(t, err)
		assert.True(t, core.IsRetryable(err))
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`prefix {"a": "}"} suffix`, `{"a": "}"}`},
		{`[1, [2]] tail`, `[1, [2]]`},
		{`{"a": "\"{"}`, `{"a": "\"{"}`},
		{`no json`, ``},
		{`{"unterminated": 1`, ``},
		{"```json\n{\"opinions\": []}\n```", `{"opinions": []}`},
		{`see [note] then {"score": 4}`, `{"score": 4}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractJSON(tt.in), tt.in)
	}
}
