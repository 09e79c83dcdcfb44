// Package storage persists bitbase generation run history across
// process invocations, grounded on the teacher's original UserPreferences
// / GameStats ledger shape: JSON blobs under fixed keys in a BadgerDB
// store (see spec.md's SPEC_FULL.md supplemented feature #3).
package storage

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	keyRunHistory = "bitbase:run_history"
)

// GenerationRun records one completed (or failed) Generator run for a
// single piece list, the bitbase-domain replacement for the teacher's
// GameResult/GameStats records.
type GenerationRun struct {
	PieceList    string        `json:"piece_list"`
	Size         uint64        `json:"size"`
	WonCount     uint64        `json:"won_count"`
	IllegalCount uint64        `json:"illegal_count"`
	DrawCount    uint64        `json:"draw_count"`
	Iterations   int           `json:"iterations"`
	Duration     time.Duration `json:"duration"`
	Compression  string        `json:"compression"`
	Err          string        `json:"error,omitempty"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// RunHistory is the persisted ledger of every generation run recorded so
// far, newest first.
type RunHistory struct {
	Runs []GenerationRun `json:"runs"`
}

// Storage wraps BadgerDB for persistent storage of the run ledger.
type Storage struct {
	db *badger.DB
}

// NewStorage creates a new storage instance rooted at the process's data
// directory.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadRunHistory loads the full run ledger, or an empty one if none has
// been recorded yet.
func (s *Storage) LoadRunHistory() (*RunHistory, error) {
	history := &RunHistory{}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyRunHistory))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, history)
		})
	})

	return history, err
}

// RecordRun appends run to the ledger (most recent first) and persists
// it, the generation-time analogue of the teacher's RecordGame.
func (s *Storage) RecordRun(run GenerationRun) error {
	history, err := s.LoadRunHistory()
	if err != nil {
		return err
	}
	run.FinishedAt = time.Now()
	history.Runs = append([]GenerationRun{run}, history.Runs...)

	data, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyRunHistory), data)
	})
}

// RunsFor filters the ledger to runs matching a piece list string.
func (h *RunHistory) RunsFor(pieceList string) []GenerationRun {
	var out []GenerationRun
	for _, r := range h.Runs {
		if r.PieceList == pieceList {
			out = append(out, r)
		}
	}
	return out
}
