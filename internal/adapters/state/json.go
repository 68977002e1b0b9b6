package state

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/fsutil"
)

// JSONVerdictStore implements core.VerdictStore with one JSON file per run.
// It needs no database and the files double as a portable export format.
type JSONVerdictStore struct {
	dir string
	mu  sync.RWMutex
}

// NewJSONVerdictStore creates a store rooted at dir.
func NewJSONVerdictStore(dir string) *JSONVerdictStore {
	return &JSONVerdictStore{dir: dir}
}

// recordEnvelope wraps a run with an integrity checksum.
type recordEnvelope struct {
	Version   int             `json:"version"`
	Checksum  string          `json:"checksum"`
	UpdatedAt time.Time       `json:"updated_at"`
	Record    json.RawMessage `json:"record"`
}

// Save persists a run atomically.
func (s *JSONVerdictStore) Save(_ context.Context, rec *core.RunRecord) error {
	if rec == nil || rec.ID == "" {
		return core.ErrValidation(core.CodeInvalidTarget, "run record requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.path(rec.ID), data, 0o644); err != nil {
		return fmt.Errorf("writing run file: %w", err)
	}
	return nil
}

// Get loads a run by ID.
func (s *JSONVerdictStore) Get(_ context.Context, id string) (*core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, core.ErrNotFound("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}
	return DecodeRecord(data)
}

// List returns the most recent runs, newest first. Corrupt files are skipped.
func (s *JSONVerdictStore) List(_ context.Context, limit int) ([]*core.RunRecord, error) {
	return s.list(limit, func(*core.RunRecord) bool { return true })
}

// ListByTarget returns the most recent runs of one repository, newest first.
func (s *JSONVerdictStore) ListByTarget(_ context.Context, repoURL string, limit int) ([]*core.RunRecord, error) {
	return s.list(limit, func(rec *core.RunRecord) bool { return rec.Target.RepoURL == repoURL })
}

func (s *JSONVerdictStore) list(limit int, keep func(*core.RunRecord) bool) ([]*core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history directory: %w", err)
	}

	var out []*core.RunRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		rec, err := DecodeRecord(data)
		if err != nil || !keep(rec) {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Delete removes a run file. Deleting an unknown run is not an error.
func (s *JSONVerdictStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	return nil
}

// Close is a no-op.
func (s *JSONVerdictStore) Close() error { return nil }

// Dir returns the store directory.
func (s *JSONVerdictStore) Dir() string {
	return s.dir
}

func (s *JSONVerdictStore) path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+".json")
}

// EncodeRecord serializes a run inside a checksummed envelope.
func EncodeRecord(rec *core.RunRecord) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling run record: %w", err)
	}
	envelope := recordEnvelope{
		Version:   1,
		Checksum:  checksum(payload),
		UpdatedAt: time.Now(),
		Record:    payload,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}
	return data, nil
}

// DecodeRecord reverses EncodeRecord and verifies the checksum.
func DecodeRecord(data []byte) (*core.RunRecord, error) {
	var envelope recordEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	// MarshalIndent re-indents the raw record; compact it back before hashing.
	payload, err := compactJSON(envelope.Record)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	if checksum(payload) != envelope.Checksum {
		return nil, core.ErrValidation(core.CodeCorruptRecord, "run file checksum mismatch")
	}
	var rec core.RunRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling run record: %w", err)
	}
	return &rec, nil
}

func compactJSON(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Verify that JSONVerdictStore implements core.VerdictStore.
var _ core.VerdictStore = (*JSONVerdictStore)(nil)
