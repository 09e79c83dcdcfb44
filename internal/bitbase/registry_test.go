package bitbase

import (
	"testing"

	"github.com/hailam/chessplay/internal/board"
)

func mustPos(t *testing.T, fen string) *board.Position {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return pos
}

func TestGetValueFromBitbaseBareKingsIsAlwaysDraw(t *testing.T) {
	set := NewBitbaseSet(t.TempDir(), nil)
	pos := mustPos(t, "4k3/8/8/8/8/8/8/4K3 w - - 0 1")
	if got := set.GetValueFromBitbase(pos); got != Draw {
		t.Errorf("bare kings: got %s, want Draw", got)
	}
}

func TestGetValueFromBitbaseUnknownWithoutRegisteredBitbase(t *testing.T) {
	set := NewBitbaseSet(t.TempDir(), nil)
	pos := mustPos(t, "4k3/8/8/8/8/8/8/R3K3 w - - 0 1")
	if got := set.GetValueFromBitbase(pos); got != Unknown {
		t.Errorf("no bitbase registered: got %s, want Unknown", got)
	}
}

func TestGetValueFromBitbaseDirectHitTranslatesByPolarity(t *testing.T) {
	// KRK: white king e1, rook a1, black king e8. The won bit always
	// means "White wins", independent of whose move the index records.
	list, err := ParsePieceList("KRK")
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(list)
	sig := list.Signature()

	arrangement := Arrangement{
		Squares:    []board.Square{board.E1, board.E8, board.A1},
		SideToMove: board.White,
	}
	whiteToMoveIdx := idx.Encode(arrangement)
	if whiteToMoveIdx == IllegalIndex {
		t.Fatal("expected legal index for white-to-move arrangement")
	}
	blackArrangement := arrangement
	blackArrangement.SideToMove = board.Black
	blackToMoveIdx := idx.Encode(blackArrangement)
	if blackToMoveIdx == IllegalIndex {
		t.Fatal("expected legal index for black-to-move arrangement")
	}

	bv := NewBitVector(idx.Size())
	bv.Set(whiteToMoveIdx) // White wins when encoded with White to move.
	bv.Set(blackToMoveIdx) // White wins even though the index has Black to move.

	set := NewBitbaseSet(t.TempDir(), nil)
	set.SetBitbase(sig, NewLoadedBitbase(sig, bv))

	whitePos := mustPos(t, "4k3/8/8/8/8/8/8/R3K3 w - - 0 1")
	if got := set.GetValueFromBitbase(whitePos); got != Win {
		t.Errorf("white to move, white-wins bit set: got %s, want Win", got)
	}

	blackPos := mustPos(t, "4k3/8/8/8/8/8/8/R3K3 b - - 0 1")
	if got := set.GetValueFromBitbase(blackPos); got != Loss {
		t.Errorf("black to move, white-wins bit set: got %s, want Loss (black loses since White still wins)", got)
	}
}

func TestGetValueFromBitbaseMirrorLookupTranslatesByPolarity(t *testing.T) {
	// Only the colour-swapped bitbase (KKR, i.e. Black's extra rook) is
	// registered; queries against a real KRK position (White's extra
	// rook) must fall back to the mirror lookup, exactly as
	// absoluteResult computes it: recolour + vertically flip + flip stm.
	whitePos := mustPos(t, "4k3/8/8/8/8/8/8/R3K3 w - - 0 1")
	blackPos := mustPos(t, "4k3/8/8/8/8/8/8/R3K3 b - - 0 1")

	list, whiteArrangement := DescribePosition(whitePos)
	_, blackArrangement := DescribePosition(blackPos)
	mirrorList, mWhiteArrangement := MirrorArrangement(list, whiteArrangement)
	_, mBlackArrangement := MirrorArrangement(list, blackArrangement)
	mirrorIdx := NewIndex(mirrorList)

	whiteCaseIdx := mirrorIdx.Encode(mWhiteArrangement)
	blackCaseIdx := mirrorIdx.Encode(mBlackArrangement)
	if whiteCaseIdx == IllegalIndex || blackCaseIdx == IllegalIndex {
		t.Fatal("expected legal mirror indices")
	}

	bv := NewBitVector(mirrorIdx.Size())
	bv.Set(whiteCaseIdx) // Black wins (in the real world) in both of these
	bv.Set(blackCaseIdx) // mirrored-world "White wins" cases.

	mirrorSig := list.Signature().ChangeSide()
	set := NewBitbaseSet(t.TempDir(), nil)
	set.SetBitbase(mirrorSig, NewLoadedBitbase(mirrorSig, bv))

	if got := set.GetValueFromBitbase(blackPos); got != Win {
		t.Errorf("black to move, black-wins mirror bit set: got %s, want Win", got)
	}
	if got := set.GetValueFromBitbase(whitePos); got != Loss {
		t.Errorf("white to move, black-wins mirror bit set: got %s, want Loss", got)
	}
}
