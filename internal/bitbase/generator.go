package bitbase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/chessplay/internal/board"
)

// GeneratorConfig controls one run of the generator driver (C11).
type GeneratorConfig struct {
	BitbaseDir       string
	Workers          int
	PackageSize      uint64
	MaxIterations    int
	ClusterSizeBytes uint32
	Compression      CompressionType
	Verify           bool
	Verbose          bool
}

// DefaultMaxIterations is spec.md §4.11's suggested fixpoint cap.
const DefaultMaxIterations = 1024

// DefaultClusterSizeBytes matches the cluster cache's recommended
// cluster size (cache.go's CacheSizeMBToEntries assumption).
const DefaultClusterSizeBytes = 1 << 16

// DefaultGeneratorConfig returns a config populated with spec.md's
// recommended defaults (BitbaseDir empty, Verify and Verbose off).
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Workers:          runtime.NumCPU(),
		PackageSize:      DefaultPackageSize,
		MaxIterations:    DefaultMaxIterations,
		ClusterSizeBytes: DefaultClusterSizeBytes,
		Compression:      CompressionMisc1,
	}
}

func (c GeneratorConfig) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 1
}

// Generator drives computeBitbaseRec against a BitbaseSet, building
// and registering every dependency a target piece list needs before
// building the target itself (C11), grounded on the original engine's
// BitbaseGenerator (bitbasegenerator.cpp/h).
type Generator struct {
	cfg GeneratorConfig
	set *BitbaseSet

	mu         sync.Mutex
	lastReport RunReport
}

// LastReport returns the statistics from the most recently completed
// computeBitbase call, whether it built the caller's requested target
// or one of its dependencies — callers after ComputeBitbaseRec returns
// get the target's own report, since it runs last in the recursion.
func (g *Generator) LastReport() RunReport {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastReport
}

// NewGenerator creates a driver that registers built bitbases into set
// and, when cfg.BitbaseDir is non-empty, also writes them to disk.
func NewGenerator(cfg GeneratorConfig, set *BitbaseSet) *Generator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.PackageSize == 0 {
		cfg.PackageSize = DefaultPackageSize
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ClusterSizeBytes == 0 {
		cfg.ClusterSizeBytes = DefaultClusterSizeBytes
	}
	return &Generator{cfg: cfg, set: set}
}

// ComputeBitbaseRec is the outer recursion: build every smaller
// bitbase the target list's captures and promotions can reach, then
// the target list itself. Recursion terminates at the bare-kings case
// (never built — always a draw, see registry.go's GetValueFromBitbase).
func (g *Generator) ComputeBitbaseRec(ctx context.Context, list *PieceList) error {
	if list.Len() <= 2 {
		return nil
	}
	name := list.String()
	if g.set.IsBitbaseAvailable(name) {
		return nil
	}
	if g.cfg.BitbaseDir != "" {
		if err := g.set.LoadBitbase(name); err == nil {
			return nil
		}
	}

	for i := 2; i < list.Len(); i++ {
		e := list.Entries[i]
		if e.Kind == board.Pawn {
			for _, promo := range []board.PieceType{board.Queen, board.Rook, board.Bishop, board.Knight} {
				if err := g.ComputeBitbaseRec(ctx, replacePiece(list, i, promo)); err != nil {
					return err
				}
			}
		}
		if err := g.ComputeBitbaseRec(ctx, removePiece(list, i)); err != nil {
			return err
		}
	}

	return g.computeBitbase(ctx, list)
}

// removePiece returns a fresh piece list with the non-king entry at
// entryIndex removed.
func removePiece(list *PieceList, entryIndex int) *PieceList {
	nonKing := make([]PieceEntry, 0, list.Len()-3)
	for i, e := range list.Entries[2:] {
		if i+2 == entryIndex {
			continue
		}
		nonKing = append(nonKing, e)
	}
	return NewPieceList(nonKing)
}

// replacePiece returns a fresh piece list with the non-king entry at
// entryIndex's kind replaced (a pawn promotion target), colour kept.
func replacePiece(list *PieceList, entryIndex int, newKind board.PieceType) *PieceList {
	nonKing := make([]PieceEntry, 0, list.Len()-2)
	for i, e := range list.Entries[2:] {
		if i+2 == entryIndex {
			nonKing = append(nonKing, PieceEntry{Kind: newKind, Color: e.Color})
		} else {
			nonKing = append(nonKing, e)
		}
	}
	return NewPieceList(nonKing)
}

// computeBitbase runs the initial pass and fixpoint loop for one
// piece list whose dependencies are already registered, then stores
// and registers the result.
func (g *Generator) computeBitbase(ctx context.Context, list *PieceList) error {
	start := time.Now()
	idx := NewIndex(list)
	gs := NewGenerationState(idx.Size())

	if err := g.initialPass(ctx, list, idx, gs); err != nil {
		return fmt.Errorf("bitbase: initial pass for %s: %w", list.String(), err)
	}
	iterations, err := g.fixpoint(ctx, list, idx, gs)
	if err != nil {
		return fmt.Errorf("bitbase: fixpoint for %s: %w", list.String(), err)
	}

	sig := list.Signature()
	g.set.SetBitbase(sig, NewLoadedBitbase(sig, gs.won))

	if g.cfg.BitbaseDir != "" {
		path := filepath.Join(g.cfg.BitbaseDir, list.String()+".btb")
		if err := gs.StoreToFile(path, sig, g.cfg.ClusterSizeBytes, g.cfg.Compression, g.cfg.Verify); err != nil {
			return fmt.Errorf("bitbase: store %s: %w", list.String(), err)
		}
	}
	report := Report(list.String(), gs, iterations, time.Since(start), nil)
	report.Fprint(os.Stderr)
	g.mu.Lock()
	g.lastReport = report
	g.mu.Unlock()
	return nil
}

// initialPass dispenses the full index range over bounded workers,
// decoding, classifying mate/stalemate, and probing captures and
// promotions against already-built smaller bitbases (spec.md §4.11).
func (g *Generator) initialPass(ctx context.Context, list *PieceList, idx *Index, gs *GenerationState) error {
	d := NewDispenser(idx.Size(), g.cfg.PackageSize)
	grp, ctx := errgroup.WithContext(ctx)
	for w := 0; w < g.cfg.workers(); w++ {
		grp.Go(func() error {
			adapter := NewAdapter()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				a, b, ok := d.GetNextPackage()
				if !ok {
					return nil
				}
				for i := a; i < b; i++ {
					if err := g.initialPassOne(list, idx, gs, adapter, i); err != nil {
						return err
					}
				}
			}
		})
	}
	return grp.Wait()
}

func (g *Generator) initialPassOne(list *PieceList, idx *Index, gs *GenerationState, adapter *Adapter, i uint64) error {
	arrangement, ok := idx.Decode(i)
	if !ok {
		gs.SetIllegal(i)
		return nil
	}
	placeArrangement(adapter, list, arrangement)
	if !adapter.IsLegalPosition() {
		gs.SetIllegal(i)
		return nil
	}

	hasLegalMove, decided, whiteWins, err := g.initialCaptureProbe(adapter)
	if err != nil {
		return fmt.Errorf("bitbase: %s index %d: %w", list.String(), i, err)
	}
	if !hasLegalMove {
		if !adapter.IsWhiteToMove() && adapter.IsInCheck() {
			gs.SetWin(i) // checkmate against Black: White wins.
		} else {
			gs.SetLossOrDraw(i) // stalemate, or mate against White.
		}
		return nil
	}

	if !decided {
		return nil
	}
	if adapter.IsWhiteToMove() {
		if whiteWins {
			gs.SetWin(i)
		}
		// Not decided by a single capture if not a win; the fixpoint
		// loop gets a chance at non-capture continuations.
	} else if !whiteWins {
		gs.SetLossOrDraw(i)
	}
	return nil
}

// initialCaptureProbe walks every pseudo-legal move of the side to
// move exactly once, via the adapter's GenMovesOfMovingColor facade,
// filtering to the legal subset with IsLegalPosition after DoMove as
// that method's own doc comment specifies (movegen_adapter.go), rather
// than relying on a separately materialized legal move list. For each
// legal capture or promotion, it consults the registry for the
// resulting (smaller) position's absolute White-wins verdict via the
// already-built dependency bitbases. hasLegalMove reports whether the
// side to move has any legal move at all (mate/stalemate detection);
// decided/whiteWins report whether a capture or promotion gave a
// conclusive early verdict for the side to move at this position —
// one winning move is conclusive for the side to move, one
// non-winning reply is conclusive against the side NOT to move, per
// spec.md §4.11's decision rule.
func (g *Generator) initialCaptureProbe(adapter *Adapter) (hasLegalMove, decided, whiteWins bool, err error) {
	pos := adapter.Position()
	mover := pos.SideToMove
	pseudo := adapter.GenMovesOfMovingColor()
	for mi := 0; mi < pseudo.Len(); mi++ {
		m := pseudo.Get(mi)
		capture := m.IsCapture(pos) || m.IsPromotion()
		undo := adapter.DoMove(m)
		legal := adapter.IsLegalPosition()
		if legal {
			hasLegalMove = true
		}
		if legal && capture && !decided {
			childWhiteWins, probeErr := g.set.absoluteWhiteWins(pos)
			if probeErr != nil {
				adapter.UndoMove(m, undo)
				return hasLegalMove, false, false, probeErr
			}
			if mover == board.White {
				if childWhiteWins {
					decided, whiteWins = true, true
				}
			} else if !childWhiteWins {
				decided, whiteWins = true, false
			}
		}
		adapter.UndoMove(m, undo)
		if decided {
			break
		}
	}
	return hasLegalMove, decided, whiteWins, nil
}

// fixpoint runs the retrograde fixpoint loop until no iteration
// decides a new index, or the iteration cap is reached. It returns
// the number of iterations actually run.
func (g *Generator) fixpoint(ctx context.Context, list *PieceList, idx *Index, gs *GenerationState) (int, error) {
	iter := 0
	for ; iter < g.cfg.MaxIterations; iter++ {
		var work []uint64
		if iter == 0 {
			work = gs.GetWork(0, idx.Size(), false)
		} else {
			work = gs.GetWork(0, idx.Size(), true)
		}
		gs.ClearAllCandidates()

		changed, err := g.fixpointPass(ctx, list, idx, gs, work)
		if err != nil {
			return iter, err
		}
		if g.cfg.Verbose {
			fmt.Fprintf(os.Stderr, "bitbase: %s iteration %d: %d scheduled, %d newly won\n", list.String(), iter, len(work), changed)
		}
		if changed == 0 {
			return iter + 1, nil
		}
	}
	return iter, nil
}

// fixpointPass evaluates one iteration's scheduled work in parallel,
// returning the number of indices newly decided won.
func (g *Generator) fixpointPass(ctx context.Context, list *PieceList, idx *Index, gs *GenerationState, work []uint64) (uint64, error) {
	d := NewDispenserForIndexes(work, g.cfg.PackageSize)
	grp, ctx := errgroup.WithContext(ctx)

	var changed atomic.Uint64
	for w := 0; w < g.cfg.workers(); w++ {
		grp.Go(func() error {
			adapter := NewAdapter()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				pkg, ok := d.GetNextPackage()
				if !ok {
					return nil
				}
				for _, i := range pkg {
					if g.fixpointOne(list, idx, gs, adapter, i) {
						changed.Add(1)
						markRetrogradeCandidates(idx, gs, i)
					}
				}
			}
		})
	}
	if err := grp.Wait(); err != nil {
		return 0, err
	}
	return changed.Load(), nil
}

// fixpointOne applies spec.md §4.11's decision rule to one scheduled,
// still-undecided index and reports whether it newly became won.
func (g *Generator) fixpointOne(list *PieceList, idx *Index, gs *GenerationState, adapter *Adapter, i uint64) bool {
	if gs.IsDecided(i) {
		return false
	}
	arrangement, ok := idx.Decode(i)
	if !ok {
		return false
	}
	placeArrangement(adapter, list, arrangement)
	pos := adapter.Position()
	pseudo := adapter.GenMovesOfMovingColor()

	whiteToMove := arrangement.SideToMove == board.White
	anyChildWon := false
	allChildrenWon := true

	for mi := 0; mi < pseudo.Len(); mi++ {
		m := pseudo.Get(mi)
		if m.IsCapture(pos) || m.IsPromotion() {
			continue // resolved in the initial pass.
		}
		undo := adapter.DoMove(m)
		if !adapter.IsLegalPosition() {
			adapter.UndoMove(m, undo)
			continue
		}
		_, childArrangement := DescribePosition(pos)
		childIdx := idx.Encode(Arrangement{Squares: childArrangement.Squares, SideToMove: pos.SideToMove})
		adapter.UndoMove(m, undo)

		won := childIdx != IllegalIndex && gs.IsWon(childIdx)
		if won {
			anyChildWon = true
		} else {
			allChildrenWon = false
		}
		if whiteToMove && anyChildWon {
			break
		}
		if !whiteToMove && !won {
			allChildrenWon = false
			break
		}
	}

	decidedWon := whiteToMove && anyChildWon || !whiteToMove && allChildrenWon
	if decidedWon {
		gs.SetWin(i)
		return true
	}
	return false
}

// markRetrogradeCandidates flags every predecessor of a newly-won
// index as a candidate for the next fixpoint iteration, per spec.md
// §4.11's retrograde candidate computation: the piece that moved into
// the won position belongs to the colour opposite the won position's
// own side to move (that colour just moved, making it the other
// side's turn).
func markRetrogradeCandidates(idx *Index, gs *GenerationState, won uint64) {
	arrangement, ok := idx.Decode(won)
	if !ok {
		return
	}
	moverColor := arrangement.SideToMove.Other()

	occupied := board.Bitboard(0)
	for _, sq := range arrangement.Squares {
		occupied = occupied.Set(sq)
	}
	otherKing := arrangement.Squares[1]
	if moverColor == board.Black {
		otherKing = arrangement.Squares[0]
	}

	for slot, e := range idx.list.Entries {
		if e.Color != moverColor {
			continue
		}
		sq := arrangement.Squares[slot]

		var origins []board.Square
		if e.Kind == board.Pawn {
			origins = pawnRetrogradeOrigins(sq, moverColor)
		} else {
			// Leapers and sliders have symmetric move geometry, so the
			// squares a piece on sq attacks are exactly the squares it
			// could have departed from to land on sq.
			mask := pieceAttackMask(e.Kind, e.Color, sq, occupied)
			if e.Kind == board.King {
				excl := board.KingAttacks(otherKing)
				mask &^= excl
			}
			for mask != 0 {
				sq := mask.LSB()
				origins = append(origins, sq)
				mask = mask.Clear(sq)
			}
		}

		for _, origin := range origins {
			if occupied.IsSet(origin) {
				continue
			}
			predecessor := make([]board.Square, len(arrangement.Squares))
			copy(predecessor, arrangement.Squares)
			predecessor[slot] = origin
			j := idx.Encode(Arrangement{Squares: predecessor, SideToMove: moverColor})
			if j != IllegalIndex {
				gs.SetCandidate(j)
			}
		}
	}
}

// pawnRetrogradeOrigins returns the square(s) a pawn of colour c
// sitting on sq could have pushed from: a single-step origin, plus a
// double-step origin when sq is exactly two ranks from the pawn's
// start rank. Captures are deliberately not modelled here, per
// spec.md §4.11's "ignoring check/capture fine points".
func pawnRetrogradeOrigins(sq board.Square, c board.Color) []board.Square {
	r := sq.Rank()
	f := sq.File()
	var origins []board.Square
	if c == board.White {
		if r >= 2 {
			origins = append(origins, board.NewSquare(f, r-1))
			if r == 3 {
				origins = append(origins, board.NewSquare(f, r-2))
			}
		}
	} else {
		if r <= 5 {
			origins = append(origins, board.NewSquare(f, r+1))
			if r == 4 {
				origins = append(origins, board.NewSquare(f, r+2))
			}
		}
	}
	return origins
}

// placeArrangement resets adapter's position to the arrangement's
// squares per list's entries and finalises side to move.
func placeArrangement(adapter *Adapter, list *PieceList, arrangement Arrangement) {
	adapter.Clear()
	for i, e := range list.Entries {
		adapter.SetPiece(arrangement.Squares[i], board.NewPiece(e.Kind, e.Color))
	}
	adapter.SetWhiteToMove(arrangement.SideToMove == board.White)
}

