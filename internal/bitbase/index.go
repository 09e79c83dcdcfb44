package bitbase

import (
	"math/bits"
	"sync"

	"github.com/hailam/chessplay/internal/board"
)

// Index is the bidirectional map between (piece squares, side to move)
// and a dense integer in [0, Size). It is built once per PieceList and
// reused for every index operation on that list.
//
// Layout (most significant to least): king-pair digit, then one digit
// per non-king piece group (pieces of the same kind and colour, grouped
// together regardless of their position in the printed piece list),
// then the side-to-move bit as the least-significant bit of the final
// index. Each digit has a fixed radix derived purely from the piece
// list's structure, so Size and every digit's radix are computable
// without reference to any particular position.
//
// Groups of k identical (kind, colour) pieces are encoded as a single
// combinatorial-number-system rank over their k-subset of the legal
// square universe (64 squares, or 48 pawn-legal squares); this removes
// the permutation redundancy of indistinguishable pieces in one step,
// the resolution adopted here for the "exact index ordering of
// identical same-coloured pieces" open question (see DESIGN.md).
type Index struct {
	list     *PieceList
	hasPawn  bool
	kingPair *kingPairTable
	groups   []group
	size     uint64
}

type group struct {
	kind     board.PieceType
	color    board.Color
	slots    []int // positions within PieceList.Entries that this group fills, ascending
	universe []board.Square
	radix    uint64
}

// pawnSquares lists the 48 pawn-legal squares (ranks 2-7) in ascending
// square order.
func pawnSquares() []board.Square {
	sqs := make([]board.Square, 0, 48)
	for sq := board.A1; sq <= board.H8; sq++ {
		if sq.Rank() != 0 && sq.Rank() != 7 {
			sqs = append(sqs, sq)
		}
	}
	return sqs
}

func allSquares() []board.Square {
	sqs := make([]board.Square, 64)
	for sq := board.A1; sq <= board.H8; sq++ {
		sqs[sq] = sq
	}
	return sqs
}

// NewIndex builds the Index for a piece list, computing domain size and
// per-group radixes once.
func NewIndex(list *PieceList) *Index {
	hasPawn := list.HasPawn()
	idx := &Index{
		list:     list,
		hasPawn:  hasPawn,
		kingPair: getKingPairTable(hasPawn),
	}

	// Group non-king entries by (kind, color) in a fixed canonical
	// processing order: White Q,R,B,N,P then Black Q,R,B,N,P. This
	// order is internal only; it need not match the printable form.
	for _, c := range [2]board.Color{board.White, board.Black} {
		for _, kind := range strengthOrder {
			var slots []int
			for i, e := range list.Entries {
				if e.Kind == kind && e.Color == c {
					slots = append(slots, i)
				}
			}
			if len(slots) == 0 {
				continue
			}
			universe := allSquares()
			if kind == board.Pawn {
				universe = pawnSquares()
			}
			g := group{
				kind:     kind,
				color:    c,
				slots:    slots,
				universe: universe,
				radix:    binomial(uint64(len(universe)), uint64(len(slots))),
			}
			idx.groups = append(idx.groups, g)
		}
	}

	size := uint64(idx.kingPair.count)
	for _, g := range idx.groups {
		size *= g.radix
	}
	idx.size = size * 2 // side to move bit
	return idx
}

// Size returns the domain size S for this piece list.
func (ix *Index) Size() uint64 { return ix.size }

// binomial computes C(n, k), 0 if k > n.
func binomial(n, k uint64) uint64 {
	if k > n {
		return 0
	}
	if k == 0 || k == n {
		return 1
	}
	if k > n-k {
		k = n - k
	}
	result := uint64(1)
	for i := uint64(0); i < k; i++ {
		result = result * (n - i) / (i + 1)
	}
	return result
}

// Arrangement is a decoded (or pre-encode) position: one square per
// PieceList entry, plus the side to move.
type Arrangement struct {
	Squares    []board.Square
	SideToMove board.Color
}

const IllegalIndex = ^uint64(0)

// Encode maps a legal arrangement to its canonical index, or returns
// IllegalIndex if the arrangement cannot be represented (duplicate
// squares, pawn on rank 1/8, or kings adjacent).
func (ix *Index) Encode(a Arrangement) uint64 {
	squares := make([]board.Square, len(a.Squares))
	copy(squares, a.Squares)

	wk, bk := squares[0], squares[1]
	transform := canonicalTransform(wk, ix.hasPawn)
	for i, sq := range squares {
		squares[i] = transform(sq)
	}
	wk, bk = squares[0], squares[1]
	// With the white king on the a1-d4 diagonal the pair table only
	// holds black kings on or below that diagonal; transpose the board
	// when the black king sits above it.
	if !ix.hasPawn && wk.File() == wk.Rank() && bk.File() < bk.Rank() {
		for i, sq := range squares {
			squares[i] = board.NewSquare(sq.Rank(), sq.File())
		}
		wk, bk = squares[0], squares[1]
	}

	if adjacentSquares(wk, bk) {
		return IllegalIndex
	}
	pairDigit, ok := ix.kingPair.indexOf(wk, bk)
	if !ok {
		return IllegalIndex
	}

	seen := map[board.Square]bool{wk: true, bk: true}
	digits := make([]uint64, len(ix.groups))
	for gi, g := range ix.groups {
		sqs := make([]board.Square, len(g.slots))
		for i, slot := range g.slots {
			sqs[i] = squares[slot]
			if seen[sqs[i]] {
				return IllegalIndex
			}
			seen[sqs[i]] = true
			if g.kind == board.Pawn && (sqs[i].Rank() == 0 || sqs[i].Rank() == 7) {
				return IllegalIndex
			}
		}
		// canonical order removes permutation redundancy among
		// identical pieces: sort ascending by square.
		sortSquares(sqs)
		for i := 1; i < len(sqs); i++ {
			if sqs[i] == sqs[i-1] {
				return IllegalIndex
			}
		}
		ranks, ok := rankCombination(g.universe, sqs)
		if !ok {
			return IllegalIndex
		}
		digits[gi] = ranks
	}

	v := uint64(pairDigit)
	for gi, g := range ix.groups {
		v = v*g.radix + digits[gi]
	}

	stmBit := uint64(0)
	if a.SideToMove == board.Black {
		stmBit = 1
	}
	return v*2 + stmBit
}

// Decode maps an index back to its canonical arrangement. legal is
// false for structurally-illegal indices (out-of-range digits, square
// collisions, pawn on rank 1/8, or adjacent kings); it does not check
// chess legality such as "side not to move is in check" — that is the
// external move generator's job (C12), consulted by the generator
// driver.
func (ix *Index) Decode(index uint64) (Arrangement, bool) {
	if index >= ix.size {
		return Arrangement{}, false
	}
	stmBit := index & 1
	v := index / 2

	digits := make([]uint64, len(ix.groups))
	for gi := len(ix.groups) - 1; gi >= 0; gi-- {
		r := ix.groups[gi].radix
		digits[gi] = v % r
		v /= r
	}
	pairDigit := v
	if pairDigit >= uint64(ix.kingPair.count) {
		return Arrangement{}, false
	}
	wk, bk := ix.kingPair.squaresOf(int(pairDigit))

	squares := make([]board.Square, ix.list.Len())
	squares[0], squares[1] = wk, bk
	seen := map[board.Square]bool{wk: true, bk: true}

	for gi, g := range ix.groups {
		sqs, ok := unrankCombination(g.universe, g.slots, digits[gi])
		if !ok {
			return Arrangement{}, false
		}
		for i, slot := range g.slots {
			sq := sqs[i]
			if seen[sq] {
				return Arrangement{}, false
			}
			seen[sq] = true
			squares[slot] = sq
		}
	}

	stm := board.White
	if stmBit == 1 {
		stm = board.Black
	}
	return Arrangement{Squares: squares, SideToMove: stm}, true
}

func sortSquares(sqs []board.Square) {
	for i := 1; i < len(sqs); i++ {
		for j := i; j > 0 && sqs[j] < sqs[j-1]; j-- {
			sqs[j], sqs[j-1] = sqs[j-1], sqs[j]
		}
	}
}

// rankCombination returns the combinatorial-number-system rank of the
// (sorted, distinct) squares as a k-subset of universe, or !ok if any
// square is not in universe.
func rankCombination(universe []board.Square, sqs []board.Square) (uint64, bool) {
	pos := make(map[board.Square]int, len(universe))
	for i, s := range universe {
		pos[s] = i
	}
	idxs := make([]int, len(sqs))
	for i, s := range sqs {
		p, ok := pos[s]
		if !ok {
			return 0, false
		}
		idxs[i] = p
	}
	// Combinatorial number system: rank = sum_{i=0}^{k-1} C(idxs[i], i+1)
	// for idxs sorted ascending.
	k := len(idxs)
	var rank uint64
	for i := 0; i < k; i++ {
		rank += binomial(uint64(idxs[i]), uint64(i+1))
	}
	return rank, true
}

// unrankCombination inverts rankCombination: given a rank, recover the
// k ascending indices into universe and map them to squares.
func unrankCombination(universe []board.Square, slots []int, rank uint64) ([]board.Square, bool) {
	k := len(slots)
	n := uint64(len(universe))
	idxs := make([]int, k)
	remaining := rank
	top := n
	for i := k; i >= 1; i-- {
		// find largest c such that C(c, i) <= remaining, c < top
		c := top - 1
		for c >= uint64(i-1) && binomial(c, uint64(i)) > remaining {
			c--
		}
		if int64(c) < 0 {
			return nil, false
		}
		idxs[i-1] = int(c)
		remaining -= binomial(c, uint64(i))
		top = c
	}
	sqs := make([]board.Square, k)
	for i, ix := range idxs {
		if ix < 0 || ix >= len(universe) {
			return nil, false
		}
		sqs[i] = universe[ix]
	}
	return sqs, true
}

func adjacentSquares(a, b board.Square) bool {
	return board.KingAttacks(a).IsSet(b)
}

// canonicalTransform returns the square transform that brings wk into
// the canonical reduction zone: for pawn-containing lists, the left
// half of the board (files a-d, horizontal mirror only); for pawnless
// lists, the a1-d4 octant triangle (up to two flips plus a diagonal
// transpose), folding the board's full 8-fold symmetry.
func canonicalTransform(wk board.Square, hasPawn bool) func(board.Square) board.Square {
	file, rank := wk.File(), wk.Rank()
	if hasPawn {
		flipFile := file > 3
		return func(sq board.Square) board.Square {
			f, r := sq.File(), sq.Rank()
			if flipFile {
				f = 7 - f
			}
			return board.NewSquare(f, r)
		}
	}

	flipFile := file > 3
	flipRank := rank > 3
	foldedRank := rank
	if flipRank {
		foldedRank = 7 - rank
	}
	foldedFile := file
	if flipFile {
		foldedFile = 7 - file
	}
	transpose := foldedRank > foldedFile

	return func(sq board.Square) board.Square {
		f, r := sq.File(), sq.Rank()
		if flipFile {
			f = 7 - f
		}
		if flipRank {
			r = 7 - r
		}
		if transpose {
			f, r = r, f
		}
		return board.NewSquare(f, r)
	}
}

// kingPairTable enumerates the canonical (white king, black king)
// pairs for a given pawn-presence flag, excluding adjacent pairs.
// Built once per flag value and cached process-wide since it depends
// only on the boolean, not on any particular piece list.
type kingPairTable struct {
	pairs  []board.Square // flattened wk,bk pairs
	lookup map[uint16]int
	count  int
}

func buildKingPairTable(hasPawn bool) *kingPairTable {
	t := &kingPairTable{lookup: make(map[uint16]int)}
	addPair := func(wk, bk board.Square) {
		if adjacentSquares(wk, bk) {
			return
		}
		key := uint16(wk)<<8 | uint16(bk)
		if _, ok := t.lookup[key]; ok {
			return
		}
		t.lookup[key] = t.count
		t.pairs = append(t.pairs, wk, bk)
		t.count++
	}

	if hasPawn {
		for wk := board.A1; wk <= board.H8; wk++ {
			if wk.File() > 3 {
				continue
			}
			for bk := board.A1; bk <= board.H8; bk++ {
				addPair(wk, bk)
			}
		}
		return t
	}

	octant := []board.Square{board.A1, board.B1, board.C1, board.D1, board.B2, board.C2, board.D2, board.C3, board.D3, board.D4}
	for _, wk := range octant {
		diag := wk.File() == wk.Rank()
		for bk := board.A1; bk <= board.H8; bk++ {
			if diag && bk.File() < bk.Rank() {
				continue
			}
			addPair(wk, bk)
		}
	}
	return t
}

var (
	kingPairTables [2]*kingPairTable
	kingPairOnce   [2]sync.Once
)

func getKingPairTable(hasPawn bool) *kingPairTable {
	i := 0
	if hasPawn {
		i = 1
	}
	kingPairOnce[i].Do(func() {
		kingPairTables[i] = buildKingPairTable(hasPawn)
	})
	return kingPairTables[i]
}

func (t *kingPairTable) indexOf(wk, bk board.Square) (int, bool) {
	i, ok := t.lookup[uint16(wk)<<8|uint16(bk)]
	return i, ok
}

func (t *kingPairTable) squaresOf(i int) (wk, bk board.Square) {
	return t.pairs[2*i], t.pairs[2*i+1]
}

// PopCountFrom is a small helper re-exported for statistics callers
// that want to count set bits in a raw word slice without importing
// math/bits directly.
func PopCountFrom(words []uint64, fromWord int) uint64 {
	var n uint64
	for i := fromWord; i < len(words); i++ {
		n += uint64(bits.OnesCount64(words[i]))
	}
	return n
}
