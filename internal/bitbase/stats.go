package bitbase

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// RunReport summarises one completed Generator.computeBitbase call for
// human-readable reporting, grounded on the original engine's
// GenerationState::printStatistic and ClusterCache::print (generationstate.h,
// cluster-cache.h) — rendered here with humanized units rather than raw
// integers, matching go-humanize's role elsewhere in the teacher's stack.
type RunReport struct {
	PieceList    string
	Size         uint64
	WonCount     uint64
	IllegalCount uint64
	DrawCount    uint64
	Iterations   int
	Duration     time.Duration
	Cache        CacheStats
}

// Fprint writes a human-readable one-line summary of the run to w,
// followed by a second line of cluster-cache statistics when the
// report carries a cache (Cache.Capacity > 0).
func (r RunReport) Fprint(w io.Writer) {
	fmt.Fprintf(w, "%s: %s positions (%s won, %s illegal, %s draw) in %d iterations, %s\n",
		r.PieceList,
		humanize.Comma(int64(r.Size)),
		humanize.Comma(int64(r.WonCount)),
		humanize.Comma(int64(r.IllegalCount)),
		humanize.Comma(int64(r.DrawCount)),
		r.Iterations,
		humanize.RelTime(time.Now().Add(-r.Duration), time.Now(), "", ""),
	)
	if r.Cache.Capacity > 0 {
		total := r.Cache.Hits + r.Cache.Misses
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(r.Cache.Hits) / float64(total) * 100
		}
		fmt.Fprintf(w, "  cluster cache: %d/%d entries, %.1f%% hit rate (%s hits, %s misses), %.1f%% filled, %.1f%% overwrites\n",
			r.Cache.Entries, r.Cache.Capacity, hitRate,
			humanize.Comma(int64(r.Cache.Hits)), humanize.Comma(int64(r.Cache.Misses)),
			r.Cache.FillPercent, r.Cache.OverwriteRate)
	}
}

// Report builds a RunReport from a completed generation's state and the
// shared cluster cache (if any probing has warmed it).
func Report(pieceList string, gs *GenerationState, iterations int, duration time.Duration, cache *ClusterCache) RunReport {
	r := RunReport{
		PieceList:    pieceList,
		Size:         gs.Size(),
		WonCount:     gs.WonCount(),
		IllegalCount: gs.IllegalCount(),
		DrawCount:    gs.DrawCount(),
		Iterations:   iterations,
		Duration:     duration,
	}
	if cache != nil {
		r.Cache = cache.Stats()
	}
	return r
}

// FileSizeString humanizes a byte count, e.g. for reporting a written
// bitbase file's on-disk footprint after compression.
func FileSizeString(bytes int64) string {
	return humanize.Bytes(uint64(bytes))
}
