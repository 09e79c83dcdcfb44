package bitbase

import "github.com/hailam/chessplay/internal/board"

// Adapter is the narrow facade the bitbase core needs from the
// external move generator (C12), grounded on internal/board's
// Position, MoveGenerator and attack-table functions. It deliberately
// exposes only the operations spec.md §4.12 lists — nothing about
// search, evaluation or move ordering — so the generator driver (C11)
// never reaches into board internals directly.
type Adapter struct {
	pos *board.Position
}

// NewAdapter wraps a freshly-allocated, empty position.
func NewAdapter() *Adapter {
	return &Adapter{pos: &board.Position{EnPassant: board.NoSquare, FullMoveNumber: 1}}
}

// Position exposes the wrapped position for callers that need direct
// board access (e.g. probe-side signature lookups).
func (a *Adapter) Position() *board.Position { return a.pos }

// Clear empties the board.
func (a *Adapter) Clear() { a.pos.Clear() }

// SetPiece places a piece; callers must call SetWhiteToMove afterwards.
func (a *Adapter) SetPiece(sq board.Square, piece board.Piece) {
	a.pos.PlacePiece(piece, sq)
}

// SetWhiteToMove finalises side-to-move and derived state (hash, king
// squares, checkers) after a sequence of SetPiece calls.
func (a *Adapter) SetWhiteToMove(white bool) {
	stm := board.White
	if !white {
		stm = board.Black
	}
	a.pos.Finalize(stm)
}

// IsWhiteToMove reports the side to move.
func (a *Adapter) IsWhiteToMove() bool { return a.pos.SideToMove == board.White }

// IsInCheck reports whether the side to move is in check.
func (a *Adapter) IsInCheck() bool { return a.pos.InCheck() }

// IsLegalPosition reports whether the position is structurally and
// chess-legally valid: exactly one king per side, no pawns on rank
// 1/8, and the side NOT to move is not in check (the only
// en-passant-relevant field the bitbase core ignores, per spec.md
// §4.2's "En-passant state is ignored" edge case).
func (a *Adapter) IsLegalPosition() bool {
	if err := a.pos.Validate(); err != nil {
		return false
	}
	notToMove := a.pos.SideToMove.Other()
	return !a.pos.IsSquareAttacked(a.pos.KingSquare[notToMove], a.pos.SideToMove)
}

// GenMovesOfMovingColor returns all pseudo-legal moves of the side to
// move; the bitbase core itself filters for legality using
// IsLegalPosition after DoMove, rather than relying on the generator's
// own (potentially check-aware) legal move filter, since retrograde
// generation needs pseudo-legal moves including some the generator
// might otherwise prune.
func (a *Adapter) GenMovesOfMovingColor() *board.MoveList {
	return a.pos.GeneratePseudoLegalMoves()
}

// GetAllPiecesBB returns the full occupancy bitboard.
func (a *Adapter) GetAllPiecesBB() board.Bitboard { return a.pos.AllOccupied }

// GetPieceBB returns the bitboard of one piece kind+colour.
func (a *Adapter) GetPieceBB(piece board.Piece) board.Bitboard {
	return a.pos.Pieces[piece.Color()][piece.Type()]
}

// GetKingSquare returns the king square for a colour.
func (a *Adapter) GetKingSquare(c board.Color) board.Square { return a.pos.KingSquare[c] }

// PieceAttackMask returns the squares a piece of the given kind and
// colour, sitting on sq, attacks given the current occupancy — used by
// retrograde candidate generation (C11), which exploits the geometric
// symmetry of leaper/slider attacks (the set of squares a rook on sq
// attacks is the same set from which a rook could have departed to
// reach sq).
func (a *Adapter) PieceAttackMask(kind board.PieceType, c board.Color, sq board.Square) board.Bitboard {
	return pieceAttackMask(kind, c, sq, a.pos.AllOccupied)
}

// pieceAttackMask is the geometry switch behind PieceAttackMask. It is
// package-level, rather than requiring a live *Adapter, so the
// generator driver's retrograde candidate computation (markRetrogradeCandidates
// in generator.go) can reuse the exact same switch against an
// occupancy bitboard derived from a decoded Arrangement that was never
// placed on a board.
func pieceAttackMask(kind board.PieceType, c board.Color, sq board.Square, occ board.Bitboard) board.Bitboard {
	switch kind {
	case board.Knight:
		return board.KnightAttacks(sq)
	case board.King:
		return board.KingAttacks(sq)
	case board.Bishop:
		return board.BishopAttacks(sq, occ)
	case board.Rook:
		return board.RookAttacks(sq, occ)
	case board.Queen:
		return board.QueenAttacks(sq, occ)
	case board.Pawn:
		return board.PawnAttacks(sq, c)
	default:
		return 0
	}
}

// DoMove applies a move and returns the undo token.
func (a *Adapter) DoMove(m board.Move) board.UndoInfo {
	return a.pos.MakeMove(m)
}

// UndoMove reverses a move applied by DoMove.
func (a *Adapter) UndoMove(m board.Move, undo board.UndoInfo) {
	a.pos.UnmakeMove(m, undo)
}
