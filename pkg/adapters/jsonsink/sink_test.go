package jsonsink

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/palthedog/recmari/pkg/adapters/logger"
	"github.com/palthedog/recmari/pkg/pipeline"
)

type mockFS struct {
	files    map[string][]byte
	dirs     []string
	writeErr error
	mkdirErr error
}

func newMockFS() *mockFS {
	return &mockFS{files: make(map[string][]byte)}
}

func (m *mockFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (m *mockFS) WriteFile(path string, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.files[path] = data
	return nil
}

func (m *mockFS) MkdirAll(path string) error {
	if m.mkdirErr != nil {
		return m.mkdirErr
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockFS) Exists(path string) (bool, error) {
	_, ok := m.files[path]
	return ok, nil
}

func (m *mockFS) Remove(path string) error {
	delete(m.files, path)
	return nil
}

func testMatch() *pipeline.Match {
	return &pipeline.Match{
		ID:     uuid.New(),
		Source: pipeline.SourceMetadata{FilePath: "match.mp4", SampleStride: 2},
		Rounds: []pipeline.Round{
			{
				StartIndex: 0,
				EndIndex:   3,
				Frames: []pipeline.FrameData{
					{Index: 0, P1: pipeline.PlayerState{Slot: pipeline.SlotP1, HealthRatio: 1, Valid: true}},
				},
				Termination: pipeline.TerminatedByBoundary,
			},
		},
		EndTime:     300 * time.Millisecond,
		Termination: pipeline.TerminatedByStreamEnd,
	}
}

func TestWriteMatch(t *testing.T) {
	fs := newMockFS()
	s := New("out", fs, logger.NewNoop())

	if err := s.WriteMatch(testMatch()); err != nil {
		t.Fatalf("WriteMatch: %v", err)
	}

	if len(fs.dirs) == 0 || fs.dirs[0] != "out" {
		t.Errorf("output directory not created: %v", fs.dirs)
	}

	data, ok := fs.files["out/match-000.json"]
	if !ok {
		t.Fatalf("expected out/match-000.json, files: %v", keys(fs.files))
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
	if decoded["termination"] != "stream_end" {
		t.Errorf("expected termination marker in JSON, got %v", decoded["termination"])
	}
	if _, ok := decoded["rounds"]; !ok {
		t.Error("rounds missing from JSON")
	}
}

func TestWriteMatch_SequentialNumbering(t *testing.T) {
	fs := newMockFS()
	s := New("out", fs, logger.NewNoop())

	for i := 0; i < 3; i++ {
		if err := s.WriteMatch(testMatch()); err != nil {
			t.Fatalf("WriteMatch %d: %v", i, err)
		}
	}

	for _, want := range []string{"out/match-000.json", "out/match-001.json", "out/match-002.json"} {
		if _, ok := fs.files[want]; !ok {
			t.Errorf("missing %s, files: %v", want, keys(fs.files))
		}
	}
}

func TestWriteMatch_Errors(t *testing.T) {
	fs := newMockFS()
	fs.mkdirErr = errors.New("disk full")
	s := New("out", fs, logger.NewNoop())
	if err := s.WriteMatch(testMatch()); err == nil {
		t.Error("expected a mkdir error to surface")
	}

	fs = newMockFS()
	fs.writeErr = errors.New("disk full")
	s = New("out", fs, logger.NewNoop())
	if err := s.WriteMatch(testMatch()); err == nil {
		t.Error("expected a write error to surface")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
