package bitbase

import (
	"testing"

	"github.com/hailam/chessplay/internal/board"
)

func TestIndexEncodeDecodeRoundTrip(t *testing.T) {
	list, err := ParsePieceList("KQKR")
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(list)

	cases := []Arrangement{
		{Squares: []board.Square{board.A1, board.H8, board.D4, board.D5}, SideToMove: board.White},
		{Squares: []board.Square{board.A1, board.H8, board.D4, board.D5}, SideToMove: board.Black},
		{Squares: []board.Square{board.C3, board.F6, board.A8, board.H1}, SideToMove: board.White},
	}

	for _, a := range cases {
		i := idx.Encode(a)
		if i == IllegalIndex {
			t.Fatalf("Encode(%+v) returned IllegalIndex", a)
		}
		got, ok := idx.Decode(i)
		if !ok {
			t.Fatalf("Decode(%d) failed for arrangement %+v", i, a)
		}
		roundTrip := idx.Encode(got)
		if roundTrip != i {
			t.Errorf("round trip mismatch: encode(decode(%d)) = %d", i, roundTrip)
		}
	}
}

func TestIndexEncodeRejectsDuplicateSquares(t *testing.T) {
	list, err := ParsePieceList("KQKR")
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(list)
	a := Arrangement{
		Squares:    []board.Square{board.A1, board.H8, board.D4, board.D4},
		SideToMove: board.White,
	}
	if got := idx.Encode(a); got != IllegalIndex {
		t.Errorf("expected IllegalIndex for duplicate squares, got %d", got)
	}
}

func TestIndexEncodeRejectsAdjacentKings(t *testing.T) {
	list, err := ParsePieceList("KK")
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(list)
	a := Arrangement{Squares: []board.Square{board.E1, board.E2}, SideToMove: board.White}
	if got := idx.Encode(a); got != IllegalIndex {
		t.Errorf("expected IllegalIndex for adjacent kings, got %d", got)
	}
}

func TestIndexSizeIsEvenForSideToMoveBit(t *testing.T) {
	list, err := ParsePieceList("KPK")
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(list)
	if idx.Size()%2 != 0 {
		t.Errorf("index domain size must be even (side-to-move LSB), got %d", idx.Size())
	}
}
