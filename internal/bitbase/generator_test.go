package bitbase

import (
	"context"
	"testing"

	"github.com/hailam/chessplay/internal/board"
)

// buildTestBitbase runs the full generator (initial pass + fixpoint,
// recursively building every capture/promotion dependency first) for
// list, entirely in memory (no BitbaseDir set, so nothing touches
// disk), and registers the result on a fresh BitbaseSet.
func buildTestBitbase(t *testing.T, pieceString string) *BitbaseSet {
	t.Helper()
	list, err := ParsePieceList(pieceString)
	if err != nil {
		t.Fatalf("ParsePieceList(%q): %v", pieceString, err)
	}
	set := NewBitbaseSet(t.TempDir(), nil)
	cfg := DefaultGeneratorConfig()
	cfg.Workers = 2
	gen := NewGenerator(cfg, set)
	if err := gen.ComputeBitbaseRec(context.Background(), list); err != nil {
		t.Fatalf("ComputeBitbaseRec(%q): %v", pieceString, err)
	}
	return set
}

// S1: KPK, White pawn e2, White king e1, Black king e8, White to move — Win.
func TestScenarioS1KPKWhitePawnWins(t *testing.T) {
	set := buildTestBitbase(t, "KPK")
	pos := mustPos(t, "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1")
	if got := set.GetValueFromBitbase(pos); got != Win {
		t.Errorf("S1: got %s, want Win", got)
	}
}

// S2: KPK, White pawn a2, White king a1, Black king c2, Black to move — Draw.
func TestScenarioS2KPKDraw(t *testing.T) {
	set := buildTestBitbase(t, "KPK")
	// A Draw needs both colour views to resolve, so the colour-swapped
	// KKP bitbase is built into the same set too.
	list, err := ParsePieceList("KPK")
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultGeneratorConfig()
	cfg.Workers = 2
	if err := NewGenerator(cfg, set).ComputeBitbaseRec(context.Background(), MirrorPieceList(list)); err != nil {
		t.Fatalf("ComputeBitbaseRec(KKP): %v", err)
	}
	pos := mustPos(t, "8/8/8/8/8/8/P1k5/K7 b - - 0 1")
	if got := set.GetValueFromBitbase(pos); got != Draw {
		t.Errorf("S2: got %s, want Draw", got)
	}
}

// S3: KRK, White king a1, rook h1, Black king e5, White to move — Win.
func TestScenarioS3KRKWins(t *testing.T) {
	set := buildTestBitbase(t, "KRK")
	pos := mustPos(t, "8/8/8/4k3/8/8/8/K6R w - - 0 1")
	if got := set.GetValueFromBitbase(pos); got != Win {
		t.Errorf("S3: got %s, want Win", got)
	}
}

// S4: KRK, White king a1, rook b2, Black king c2, Black to move —
// Black captures the rook, collapsing to bare kings: Draw.
func TestScenarioS4KRKCaptureToDraw(t *testing.T) {
	set := buildTestBitbase(t, "KRK")
	pos := mustPos(t, "8/8/8/8/8/8/1Rk5/K7 b - - 0 1")
	if got := set.GetValueFromBitbase(pos); got != Draw {
		t.Errorf("S4: got %s, want Draw", got)
	}
}

// S5: KQKR, White Kg1 Qd1, Black Ke8 Re7, White to move — Win.
func TestScenarioS5KQKRWins(t *testing.T) {
	set := buildTestBitbase(t, "KQKR")
	pos := mustPos(t, "4k3/4r3/8/8/8/8/8/3Q2K1 w - - 0 1")
	if got := set.GetValueFromBitbase(pos); got != Win {
		t.Errorf("S5: got %s, want Win", got)
	}
}

// S6: bare kings are never built as a bitbase, and always report Draw.
func TestScenarioS6BareKingsDraw(t *testing.T) {
	set := NewBitbaseSet(t.TempDir(), nil)
	pos := mustPos(t, "4k3/8/8/8/8/8/8/4K3 w - - 0 1")
	if got := set.GetValueFromBitbase(pos); got != Draw {
		t.Errorf("S6: got %s, want Draw", got)
	}
	if set.IsBitbaseAvailable("KK") {
		t.Error("S6: a KK bitbase must never be built")
	}
}

// Monotonicity (property 4), checked indirectly: KRK is built twice in
// independent sets and the first 5000 decodable indices must probe to
// the same Result in both (generation is deterministic). The won and
// illegal counts are not inspected during the run.
func TestGeneratorMonotonicityAcrossRebuild(t *testing.T) {
	set1 := buildTestBitbase(t, "KRK")
	set2 := buildTestBitbase(t, "KRK")

	list, err := ParsePieceList("KRK")
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(list)
	for i := uint64(0); i < idx.Size() && i < 5000; i++ {
		arrangement, ok := idx.Decode(i)
		if !ok {
			continue
		}
		pos := arrangementToPosition(t, list, arrangement)
		r1 := set1.GetValueFromBitbase(pos)
		r2 := set2.GetValueFromBitbase(pos)
		if r1 != r2 {
			t.Fatalf("index %d: nondeterministic generation, got %s then %s", i, r1, r2)
		}
	}
}

// Fixpoint stability (property 5): once ComputeBitbaseRec returns, the
// decision rule applied again to the same (now fully decided) state
// must not find anything new to flip won. We simulate "one more
// iteration" by re-running fixpointOne across the domain and asserting
// it never reports a change.
func TestGeneratorFixpointIsStable(t *testing.T) {
	list, err := ParsePieceList("KRK")
	if err != nil {
		t.Fatal(err)
	}
	set := NewBitbaseSet(t.TempDir(), nil)
	cfg := DefaultGeneratorConfig()
	cfg.Workers = 2
	gen := NewGenerator(cfg, set)
	if err := gen.ComputeBitbaseRec(context.Background(), list); err != nil {
		t.Fatalf("ComputeBitbaseRec: %v", err)
	}

	sig := list.Signature()
	bb := set.get(sig)
	if bb == nil {
		t.Fatal("expected KRK to be registered after generation")
	}
	idx := NewIndex(list)
	gs := NewGenerationState(idx.Size())
	for i := uint64(0); i < idx.Size(); i++ {
		bit, err := bb.GetBit(i)
		if err != nil {
			continue
		}
		if bit == 1 {
			gs.SetWin(i)
		} else {
			gs.SetLossOrDraw(i)
		}
	}

	adapter := NewAdapter()
	changed := 0
	for i := uint64(0); i < idx.Size(); i++ {
		if gen.fixpointOne(list, idx, gs, adapter, i) {
			changed++
		}
	}
	if changed != 0 {
		t.Errorf("fixpointOne found %d new wins on an already-converged state; fixpoint is not stable", changed)
	}
}

// arrangementToPosition places arrangement's squares on a fresh board
// via the same adapter helper the generator itself uses, and returns
// the resulting *board.Position for probing.
func arrangementToPosition(t *testing.T, list *PieceList, arrangement Arrangement) *board.Position {
	t.Helper()
	adapter := NewAdapter()
	placeArrangement(adapter, list, arrangement)
	return adapter.Position()
}
