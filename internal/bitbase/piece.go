// Package bitbase implements exhaustive endgame tablebases: retrograde
// fixpoint generation of win/draw classifications and a compressed,
// clustered on-disk store with an LRU cluster cache for probing.
package bitbase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hailam/chessplay/internal/board"
)

// PieceEntry is one roster slot: a piece kind belonging to a colour.
type PieceEntry struct {
	Kind  board.PieceType
	Color board.Color
}

// PieceList is the canonical ordered roster of an endgame: white king
// and black king first (in that order), then the remaining pieces in
// descending-strength order with colour interleaved only incidentally
// by the sort — ties broken by colour (white before black) to keep the
// sort stable.
type PieceList struct {
	Entries []PieceEntry
}

var strengthOrder = []board.PieceType{board.Queen, board.Rook, board.Bishop, board.Knight, board.Pawn}

func strengthRank(pt board.PieceType) int {
	for i, s := range strengthOrder {
		if s == pt {
			return i
		}
	}
	return len(strengthOrder)
}

// NewPieceList builds a canonical PieceList from a set of non-king
// pieces; the two kings are added automatically.
func NewPieceList(nonKing []PieceEntry) *PieceList {
	entries := make([]PieceEntry, 0, len(nonKing)+2)
	entries = append(entries, PieceEntry{Kind: board.King, Color: board.White})
	entries = append(entries, PieceEntry{Kind: board.King, Color: board.Black})

	rest := make([]PieceEntry, len(nonKing))
	copy(rest, nonKing)
	sort.SliceStable(rest, func(i, j int) bool {
		ri, rj := strengthRank(rest[i].Kind), strengthRank(rest[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return rest[i].Color < rest[j].Color
	})
	entries = append(entries, rest...)
	return &PieceList{Entries: entries}
}

// ParsePieceList parses the printable form, e.g. "KRPKN": white king,
// then white's remaining pieces, then black king, then black's
// remaining pieces.
func ParsePieceList(s string) (*PieceList, error) {
	if len(s) < 2 || s[0] != 'K' {
		return nil, fmt.Errorf("bitbase: piece list %q must start with white king", s)
	}
	secondK := strings.IndexByte(s[1:], 'K')
	if secondK < 0 {
		return nil, fmt.Errorf("bitbase: piece list %q has no black king", s)
	}
	secondK++ // index within s

	var nonKing []PieceEntry
	for i := 1; i < secondK; i++ {
		pt, err := pieceTypeFromChar(s[i])
		if err != nil {
			return nil, err
		}
		nonKing = append(nonKing, PieceEntry{Kind: pt, Color: board.White})
	}
	for i := secondK + 1; i < len(s); i++ {
		pt, err := pieceTypeFromChar(s[i])
		if err != nil {
			return nil, err
		}
		nonKing = append(nonKing, PieceEntry{Kind: pt, Color: board.Black})
	}
	return NewPieceList(nonKing), nil
}

func pieceTypeFromChar(c byte) (board.PieceType, error) {
	switch c {
	case 'Q':
		return board.Queen, nil
	case 'R':
		return board.Rook, nil
	case 'B':
		return board.Bishop, nil
	case 'N':
		return board.Knight, nil
	case 'P':
		return board.Pawn, nil
	case 'K':
		return board.King, nil
	default:
		return 0, fmt.Errorf("bitbase: invalid piece character %q", c)
	}
}

// String renders the canonical printable form, e.g. "KRPKN".
func (pl *PieceList) String() string {
	var white, black strings.Builder
	white.WriteByte('K')
	black.WriteByte('K')
	for _, e := range pl.Entries[2:] {
		c := e.Kind.Char() - 'a' + 'A' // Char() is lower-case per board package
		if e.Color == board.White {
			white.WriteByte(c)
		} else {
			black.WriteByte(c)
		}
	}
	return white.String() + black.String()
}

// Len returns the number of pieces, kings included.
func (pl *PieceList) Len() int { return len(pl.Entries) }

// HasPawn reports whether any entry is a pawn.
func (pl *PieceList) HasPawn() bool {
	for _, e := range pl.Entries {
		if e.Kind == board.Pawn {
			return true
		}
	}
	return false
}

// NonKingEntries returns every entry after the two kings.
func (pl *PieceList) NonKingEntries() []PieceEntry {
	return pl.Entries[2:]
}

// PieceSignature packs "count of each piece kind per side" into a
// single comparable value, used as the bitbase registry's hash key.
// Five kinds per side (Q,R,B,N,P; kings are implicit and always one
// each), four bits per count.
type PieceSignature uint64

const sigBitsPerCount = 4
const sigKindCount = 5 // Q,R,B,N,P

func sigKindIndex(pt board.PieceType) int {
	switch pt {
	case board.Queen:
		return 0
	case board.Rook:
		return 1
	case board.Bishop:
		return 2
	case board.Knight:
		return 3
	case board.Pawn:
		return 4
	default:
		return -1
	}
}

// Signature computes the PieceSignature of the list.
func (pl *PieceList) Signature() PieceSignature {
	var sig PieceSignature
	for _, e := range pl.NonKingEntries() {
		ki := sigKindIndex(e.Kind)
		if ki < 0 {
			continue
		}
		shift := uint(ki*sigBitsPerCount) + boardOffset(e.Color)
		sig += PieceSignature(1) << shift
	}
	return sig
}

func boardOffset(c board.Color) uint {
	if c == board.White {
		return 0
	}
	return sigKindCount * sigBitsPerCount
}

// ChangeSide swaps the white and black piece counts, so the bitbase
// built for {KRK} also answers {KKR} queries after inversion.
func (sig PieceSignature) ChangeSide() PieceSignature {
	const half = sigKindCount * sigBitsPerCount
	const mask = (PieceSignature(1) << half) - 1
	white := sig & mask
	black := (sig >> half) & mask
	return (white << half) | black
}

// DescribePosition builds the canonical PieceList and Arrangement for
// an arbitrary legal position, so that probe callers (which only have
// a *board.Position, not a pre-built list) can look it up in a
// BitbaseSet. Entries are grouped by (kind, colour) in the same fixed
// canonical processing order Index uses internally, so the returned
// Arrangement's squares line up 1:1 with PieceList.Entries.
func DescribePosition(pos *board.Position) (*PieceList, Arrangement) {
	var nonKing []PieceEntry
	var nonKingSquares []board.Square
	for _, c := range [2]board.Color{board.White, board.Black} {
		for _, kind := range strengthOrder {
			bb := pos.Pieces[c][kind]
			for bb != 0 {
				sq := bb.PopLSB()
				nonKing = append(nonKing, PieceEntry{Kind: kind, Color: c})
				nonKingSquares = append(nonKingSquares, sq)
			}
		}
	}
	entries := append([]PieceEntry{
		{Kind: board.King, Color: board.White},
		{Kind: board.King, Color: board.Black},
	}, nonKing...)
	list := &PieceList{Entries: entries}
	squares := make([]board.Square, 0, len(nonKingSquares)+2)
	squares = append(squares, pos.KingSquare[board.White], pos.KingSquare[board.Black])
	squares = append(squares, nonKingSquares...)
	return list, Arrangement{Squares: squares, SideToMove: pos.SideToMove}
}

// MirrorPieceList swaps every entry's colour (kings included), giving
// the piece list whose bitbase answers this list's colour-swapped
// signature lookups (see MirrorArrangement and registry.go's
// absoluteResult). The printable form is what a caller needs to load
// from disk alongside the direct piece list.
func MirrorPieceList(list *PieceList) *PieceList {
	entries := make([]PieceEntry, list.Len())
	entries[0] = PieceEntry{Kind: board.King, Color: board.White}
	entries[1] = PieceEntry{Kind: board.King, Color: board.Black}
	for i := 2; i < list.Len(); i++ {
		e := list.Entries[i]
		entries[i] = PieceEntry{Kind: e.Kind, Color: e.Color.Other()}
	}
	return &PieceList{Entries: entries}
}

// MirrorArrangement applies chess's colour-swap symmetry: every piece
// changes colour and every square is flipped top-to-bottom (rank r ->
// 7-r), and the side to move changes label accordingly. This is a true
// symmetry of the game — the mirrored position, viewed with the
// mirrored side to move, has exactly the same game-theoretic value as
// the original — so it lets a bitbase built for one colour's extra
// material answer queries about the other colour's extra material
// (spec.md §6's "signature mirror" lookup). The two king entries stay
// at slots 0 and 1 (white king first) by construction.
func MirrorArrangement(list *PieceList, a Arrangement) (*PieceList, Arrangement) {
	n := list.Len()
	entries := make([]PieceEntry, n)
	squares := make([]board.Square, n)

	// Slot 0 (white king) comes from the old black king slot 1,
	// recoloured white; slot 1 (black king) from the old white king
	// slot 0, recoloured black.
	entries[0] = PieceEntry{Kind: board.King, Color: board.White}
	entries[1] = PieceEntry{Kind: board.King, Color: board.Black}
	squares[0] = a.Squares[1].Mirror()
	squares[1] = a.Squares[0].Mirror()

	for i := 2; i < n; i++ {
		e := list.Entries[i]
		entries[i] = PieceEntry{Kind: e.Kind, Color: e.Color.Other()}
		squares[i] = a.Squares[i].Mirror()
	}

	mirrored := &PieceList{Entries: entries}
	return mirrored, Arrangement{Squares: squares, SideToMove: a.SideToMove.Other()}
}
