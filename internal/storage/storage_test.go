package storage

import (
	"os"
	"testing"
)

func TestRunHistory(t *testing.T) {
	t.Run("EmptyHistory", func(t *testing.T) {
		h := &RunHistory{}
		if got := h.RunsFor("KRK"); got != nil {
			t.Errorf("expected nil for empty history, got %v", got)
		}
	})

	t.Run("RunsForFilters", func(t *testing.T) {
		h := &RunHistory{Runs: []GenerationRun{
			{PieceList: "KRK", WonCount: 100},
			{PieceList: "KQK", WonCount: 200},
			{PieceList: "KRK", WonCount: 150},
		}}
		got := h.RunsFor("KRK")
		if len(got) != 2 {
			t.Fatalf("expected 2 runs for KRK, got %d", len(got))
		}
		if got[0].WonCount != 100 || got[1].WonCount != 150 {
			t.Errorf("unexpected run order/content: %+v", got)
		}
	})
}

func TestStorageRecordAndLoadRun(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chessplay-bitbase-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	t.Setenv("XDG_DATA_HOME", tmpDir)

	s, err := NewStorage()
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer s.Close()

	if err := s.RecordRun(GenerationRun{PieceList: "KRK", Size: 1 << 20, WonCount: 500}); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := s.RecordRun(GenerationRun{PieceList: "KQK", Size: 1 << 22, WonCount: 900}); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	history, err := s.LoadRunHistory()
	if err != nil {
		t.Fatalf("LoadRunHistory failed: %v", err)
	}
	if len(history.Runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(history.Runs))
	}
	if history.Runs[0].PieceList != "KQK" {
		t.Errorf("expected most recent run first, got %q", history.Runs[0].PieceList)
	}
}
