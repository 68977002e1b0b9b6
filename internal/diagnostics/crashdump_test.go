package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/events"
)

func TestWriteCrashDump_RecordsRunContext(t *testing.T) {
	dir := t.TempDir()
	w := NewCrashDumpWriter(dir, 5, false, nil)
	w.SetRun("run-1", "https://example.com/repo.git")
	w.SetStage("evidence")
	w.SetArgs([]string{"run", "https://example.com/repo.git"})

	path, err := w.WriteCrashDump("boom")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	dump, err := LoadLatestCrashDump(dir)
	require.NoError(t, err)
	assert.Equal(t, "boom", dump.PanicValue)
	assert.Equal(t, "run-1", dump.RunID)
	assert.Equal(t, "https://example.com/repo.git", dump.Target)
	assert.Equal(t, "evidence", dump.Stage)
	assert.Equal(t, []string{"run", "https://example.com/repo.git"}, dump.Args)
	assert.NotEmpty(t, dump.StackTrace)
	assert.Nil(t, dump.RedactedEnv)
}

func TestWriteCrashDump_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	w := NewCrashDumpWriter(dir, 2, false, nil)

	for i := 0; i < 4; i++ {
		_, err := w.WriteCrashDump(fmt.Sprintf("panic %d", i))
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	names, err := listDumps(dir)
	require.NoError(t, err)
	assert.Len(t, names, 2)

	dump, err := LoadLatestCrashDump(dir)
	require.NoError(t, err)
	assert.Equal(t, "panic 3", dump.PanicValue)
}

func TestRecoverAndReturn(t *testing.T) {
	dir := t.TempDir()
	w := NewCrashDumpWriter(dir, 0, false, nil)

	audit := func() (err error) {
		defer w.RecoverAndReturn(&err)
		panic("stage exploded")
	}

	err := audit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage exploded")
	assert.Contains(t, err.Error(), dir)

	noPanic := func() (err error) {
		defer w.RecoverAndReturn(&err)
		return errors.New("plain")
	}
	assert.EqualError(t, noPanic(), "plain")
}

func TestTrack_FollowsBus(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()

	w := NewCrashDumpWriter(t.TempDir(), 1, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Track(ctx, bus)

	bus.Publish(events.NewRunStartedEvent("run-7", core.Target{RepoURL: "/tmp/repo"}, "forensic-audit"))
	bus.Publish(events.NewStageStartedEvent("run-7", "opinion", []string{"judge-a"}))

	assert.Eventually(t, func() bool {
		stage, _ := w.stage.Load().(string)
		return stage == "opinion"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "run-7", w.runID.Load())
	assert.Equal(t, "/tmp/repo", w.target.Load())
}

func TestWriteRunCrashDump_UsesRunStage(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()

	dir := t.TempDir()
	w := NewCrashDumpWriter(dir, 5, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Track(ctx, bus)

	bus.Publish(events.NewStageStartedEvent("run-a", "evidence", []string{"repo"}))
	bus.Publish(events.NewStageStartedEvent("run-b", "opinion", []string{"judge-a"}))
	assert.Eventually(t, func() bool {
		_, ok := w.stages.Load("run-b")
		return ok
	}, time.Second, 5*time.Millisecond)

	_, err := w.WriteRunCrashDump("store exploded", "run-a", "/src/a")
	require.NoError(t, err)

	dump, err := LoadLatestCrashDump(dir)
	require.NoError(t, err)
	assert.Equal(t, "run-a", dump.RunID)
	assert.Equal(t, "/src/a", dump.Target)
	assert.Equal(t, "evidence", dump.Stage)

	_, tracked := w.stages.Load("run-a")
	assert.False(t, tracked)

	bus.Publish(events.NewRunFailedEvent("run-b", errors.New("boom")))
	assert.Eventually(t, func() bool {
		_, ok := w.stages.Load("run-b")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRedactEnvironment(t *testing.T) {
	env := redactEnvironment([]string{
		"HOME=/root",
		"OPENAI_API_KEY=sk-123",
		"TRIBUNAL_LLM_API_KEY=sk-456",
		"GITHUB_TOKEN=ghp",
		"MALFORMED",
	})

	assert.Equal(t, "/root", env["HOME"])
	assert.Equal(t, "[REDACTED]", env["OPENAI_API_KEY"])
	assert.Equal(t, "[REDACTED]", env["TRIBUNAL_LLM_API_KEY"])
	assert.Equal(t, "[REDACTED]", env["GITHUB_TOKEN"])
	assert.NotContains(t, env, "MALFORMED")
}

func TestLoadLatestCrashDump_Empty(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadLatestCrashDump(dir)
	require.Error(t, err)

	_, err = LoadLatestCrashDump(filepath.Join(dir, "missing"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	_, err = LoadLatestCrashDump(dir)
	require.Error(t, err)
}
