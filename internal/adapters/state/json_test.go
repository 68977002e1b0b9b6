package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

func TestJSONVerdictStore_SaveAndGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	store := NewJSONVerdictStore(dir)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, newTestRecord("run-1", created)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "run-1.json"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var envelope recordEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if envelope.Version != 1 {
		t.Errorf("Version = %d, want 1", envelope.Version)
	}
	if envelope.Checksum == "" {
		t.Error("Checksum should be set")
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Verdict.Rubric != "forensic-audit" {
		t.Errorf("Rubric = %q", got.Verdict.Rubric)
	}
}

func TestJSONVerdictStore_GetNotFound(t *testing.T) {
	store := NewJSONVerdictStore(t.TempDir())

	_, err := store.Get(context.Background(), "missing")
	if !core.IsCategory(err, core.ErrCatNotFound) {
		t.Fatalf("Get() error = %v, want not found", err)
	}
}

func TestJSONVerdictStore_ListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONVerdictStore(dir)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, newTestRecord("run-old", base)); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, newTestPartialRecord("run-new", base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() len = %d, want 2", len(list))
	}
	if list[0].ID != "run-new" {
		t.Errorf("List()[0] = %s, want run-new", list[0].ID)
	}
}

func TestJSONVerdictStore_ListMissingDir(t *testing.T) {
	store := NewJSONVerdictStore(filepath.Join(t.TempDir(), "absent"))

	list, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() = %v, want empty", list)
	}
}

func TestDecodeRecord_DetectsTampering(t *testing.T) {
	data, err := EncodeRecord(newTestRecord("run-1", time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"overall_score": 6.5`, `"overall_score": 9.5`, 1)
	if tampered == string(data) {
		t.Fatal("fixture did not contain the expected score")
	}

	_, err = DecodeRecord([]byte(tampered))
	if !core.IsCategory(err, core.ErrCatValidation) {
		t.Fatalf("DecodeRecord() error = %v, want checksum mismatch", err)
	}
}

func TestJSONVerdictStore_PathStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONVerdictStore(dir)

	if got := store.path("../../etc/passwd"); filepath.Dir(got) != dir {
		t.Errorf("path() = %s escapes %s", got, dir)
	}
}

func TestJSONVerdictStore_ListByTargetAndDelete(t *testing.T) {
	store := NewJSONVerdictStore(t.TempDir())
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	other := newTestRecord("run-other", base.Add(time.Hour))
	other.Target.RepoURL = "/srv/other"
	for _, rec := range []*core.RunRecord{
		newTestRecord("run-1", base),
		newTestRecord("run-2", base.Add(2*time.Hour)),
		other,
	} {
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save(%s) error = %v", rec.ID, err)
		}
	}

	got, err := store.ListByTarget(ctx, "https://example.com/org/repo.git", 10)
	if err != nil {
		t.Fatalf("ListByTarget() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "run-2" || got[1].ID != "run-1" {
		t.Fatalf("ListByTarget() = %v, want run-2, run-1", ids(got))
	}

	if err := store.Delete(ctx, "run-2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "run-2"); err != nil {
		t.Fatalf("second Delete() error = %v, want nil", err)
	}
	if _, err := store.Get(ctx, "run-2"); !core.IsCategory(err, core.ErrCatNotFound) {
		t.Fatalf("Get() after Delete error = %v, want not found", err)
	}

	all, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() = %v, want 2 runs", ids(all))
	}
}

func ids(records []*core.RunRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
