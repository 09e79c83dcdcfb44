package bitbase

import "sync/atomic"

// GenerationState holds the bit vectors a generation run maintains
// over one piece list's index domain (C9), grounded on the original
// engine's GenerationState (generationstate.h) and its companion
// computedPositions vector from bitbasegenerator.cpp: a position can
// be permanently decided "not won" before the fixpoint loop ever sees
// it — e.g. when the side to move has a capture that reaches a
// position the fixpoint's non-capture-only move analysis never
// revisits — and that decision has to outlive any single iteration, so
// `decided` is tracked explicitly rather than inferred from `won`.
//
// Invariant: won ⊆ decided ⊆ ¬unknown; illegal ⊆ decided; won ∩
// illegal = ∅. won, illegal and decided all grow monotonically
// (spec.md §3).
type GenerationState struct {
	size uint64

	won       *BitVector
	illegal   *BitVector
	decided   *BitVector
	candidate *BitVector

	wonCount     atomic.Uint64
	illegalCount atomic.Uint64
	drawCount    atomic.Uint64
}

// NewGenerationState allocates the bit vectors for a domain of the
// given size.
func NewGenerationState(size uint64) *GenerationState {
	return &GenerationState{
		size:      size,
		won:       NewBitVector(size),
		illegal:   NewBitVector(size),
		decided:   NewBitVector(size),
		candidate: NewBitVector(size),
	}
}

func (gs *GenerationState) Size() uint64 { return gs.size }

// SetWin marks index as won and permanently decided.
func (gs *GenerationState) SetWin(i uint64) {
	gs.won.Set(i)
	gs.decided.Set(i)
	gs.wonCount.Add(1)
}

// SetLossOrDraw permanently decides index as not won (draw or loss for
// the side to move), without recording it in the won vector. Used both
// for stalemate/mate-against-White and for the initial pass's capture
// probe finding a move that denies White any win from this index —
// spec.md §4.11's "a loss for the side to move" case.
func (gs *GenerationState) SetLossOrDraw(i uint64) {
	gs.decided.Set(i)
	gs.drawCount.Add(1)
}

// SetIllegal marks index as illegal and permanently decided.
func (gs *GenerationState) SetIllegal(i uint64) {
	gs.illegal.Set(i)
	gs.decided.Set(i)
	gs.illegalCount.Add(1)
}

func (gs *GenerationState) IsWon(i uint64) bool     { return gs.won.Get(i) }
func (gs *GenerationState) IsIllegal(i uint64) bool { return gs.illegal.Get(i) }
func (gs *GenerationState) IsDecided(i uint64) bool { return gs.decided.Get(i) }
func (gs *GenerationState) IsUnknown(i uint64) bool { return !gs.decided.Get(i) }

// IsCandidate reports whether index is flagged as a retrograde
// candidate for the current iteration.
func (gs *GenerationState) IsCandidate(i uint64) bool { return gs.candidate.Get(i) }

// SetCandidate flags index as a retrograde candidate.
func (gs *GenerationState) SetCandidate(i uint64) { gs.candidate.Set(i) }

// ClearAllCandidates resets the candidate vector at the start of each
// fixpoint iteration.
func (gs *GenerationState) ClearAllCandidates() { gs.candidate.ClearAll() }

// GetWork materialises an ordered list of indices to process. On the
// initial pass (onlyCandidates=false) it emits every not-yet-decided
// index in range; on fixpoint iterations (onlyCandidates=true) it
// emits only candidate ∧ ¬decided (which subsumes ¬won ∧ ¬illegal).
func (gs *GenerationState) GetWork(begin, end uint64, onlyCandidates bool) []uint64 {
	if end > gs.size {
		end = gs.size
	}
	var out []uint64
	for i := begin; i < end; i++ {
		if gs.decided.Get(i) {
			continue
		}
		if onlyCandidates && !gs.candidate.Get(i) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// WonCount, IllegalCount, DrawCount report running totals for
// statistics (C13).
func (gs *GenerationState) WonCount() uint64     { return gs.wonCount.Load() }
func (gs *GenerationState) IllegalCount() uint64 { return gs.illegalCount.Load() }
func (gs *GenerationState) DrawCount() uint64    { return gs.drawCount.Load() }

// StoreToFile compresses and writes the won vector via C4/C5. When
// verify is true it round-trips the written file and compares against
// the in-memory vector before returning, the self-check the original
// engine's storeToFile(..., test=true) performs (bitbase.cpp).
func (gs *GenerationState) StoreToFile(path string, sig PieceSignature, clusterSizeBytes uint32, compression CompressionType, verify bool) error {
	if err := WriteFile(path, sig, gs.won, clusterSizeBytes, compression); err != nil {
		return err
	}
	if !verify {
		return nil
	}
	readBack, _, err := ReadAll(path)
	if err != nil {
		return err
	}
	for i := uint64(0); i < gs.size; i++ {
		if readBack.Get(i) != gs.won.Get(i) {
			return &BitbaseError{Kind: ErrDecompress, Path: path, Sig: sig}
		}
	}
	return nil
}
