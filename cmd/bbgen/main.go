// Command bbgen builds endgame bitbases for a set of piece lists,
// writing the compressed cluster files to disk and recording the run's
// statistics, the bitbase-domain counterpart of the teacher's
// cmd/chessplay-uci entry point (flag-parsed, environment-variable
// fallback for the worker count).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/hailam/chessplay/internal/bitbase"
	"github.com/hailam/chessplay/internal/storage"
)

func main() {
	var (
		outDir      = flag.String("out", "bitbases", "directory to write .btb files into")
		workers     = flag.Int("workers", 0, "worker goroutines per phase (0 = $BBGEN_WORKERS, else the number of CPUs)")
		packageSize = flag.Uint64("package-size", bitbase.DefaultPackageSize, "indices dispensed per workpackage")
		compression = flag.String("compression", "misc1", "cluster compression: none, rle, misc1, misc2")
		verify      = flag.Bool("verify", true, "round-trip verify each file after writing")
		verbose     = flag.Bool("v", false, "log progress per fixpoint iteration")
		recordRun   = flag.Bool("record", true, "persist run statistics via internal/storage")
		history     = flag.Bool("history", false, "print recorded run history for the given piece lists (or all, if none given) and exit")
		cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
	)
	flag.Parse()

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	pieceLists := flag.Args()
	if *history {
		printHistory(pieceLists)
		return
	}
	if len(pieceLists) == 0 {
		fmt.Fprintln(os.Stderr, "usage: bbgen [flags] KRK KQKR ...")
		os.Exit(2)
	}

	if *workers == 0 {
		if v := os.Getenv("BBGEN_WORKERS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*workers = n
			}
		}
	}

	comp, err := parseCompression(*compression)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("bbgen: create output dir: %v", err)
	}

	cache, err := bitbase.NewClusterCache(64)
	if err != nil {
		log.Fatalf("bbgen: create cluster cache: %v", err)
	}
	set := bitbase.NewBitbaseSet(*outDir, cache)

	cfg := bitbase.DefaultGeneratorConfig()
	cfg.BitbaseDir = *outDir
	cfg.PackageSize = *packageSize
	cfg.Compression = comp
	cfg.Verify = *verify
	cfg.Verbose = *verbose
	if *workers > 0 {
		cfg.Workers = *workers
	}
	gen := bitbase.NewGenerator(cfg, set)

	var store *storage.Storage
	if *recordRun {
		store, err = storage.NewStorage()
		if err != nil {
			log.Printf("bbgen: run history disabled: %v", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	ctx := context.Background()
	for _, ps := range pieceLists {
		list, err := bitbase.ParsePieceList(ps)
		if err != nil {
			log.Fatalf("bbgen: %v", err)
		}
		start := time.Now()
		runErr := gen.ComputeBitbaseRec(ctx, list)
		if store != nil {
			report := gen.LastReport()
			run := storage.GenerationRun{
				PieceList:    list.String(),
				Size:         report.Size,
				WonCount:     report.WonCount,
				IllegalCount: report.IllegalCount,
				DrawCount:    report.DrawCount,
				Iterations:   report.Iterations,
				Duration:     time.Since(start),
				Compression:  comp.String(),
			}
			if runErr != nil {
				run.Err = runErr.Error()
			}
			if err := store.RecordRun(run); err != nil {
				log.Printf("bbgen: record run: %v", err)
			}
		}
		if runErr != nil {
			log.Fatalf("bbgen: %s: %v", ps, runErr)
		}
	}
}

func printHistory(pieceLists []string) {
	store, err := storage.NewStorage()
	if err != nil {
		log.Fatalf("bbgen: open run history: %v", err)
	}
	defer store.Close()

	hist, err := store.LoadRunHistory()
	if err != nil {
		log.Fatalf("bbgen: load run history: %v", err)
	}

	runs := hist.Runs
	if len(pieceLists) > 0 {
		runs = nil
		for _, ps := range pieceLists {
			runs = append(runs, hist.RunsFor(ps)...)
		}
	}
	if len(runs) == 0 {
		fmt.Println("bbgen: no recorded runs")
		return
	}
	for _, r := range runs {
		status := "ok"
		if r.Err != "" {
			status = "error: " + r.Err
		}
		fmt.Printf("%s\t%s\t%d positions\t%d won\t%d iterations\t%s\t%s\n",
			r.FinishedAt.Format("2006-01-02 15:04:05"), r.PieceList, r.Size, r.WonCount, r.Iterations, r.Duration, status)
	}
}

func parseCompression(s string) (bitbase.CompressionType, error) {
	switch s {
	case "none":
		return bitbase.CompressionNone, nil
	case "rle":
		return bitbase.CompressionRLE, nil
	case "misc1":
		return bitbase.CompressionMisc1, nil
	case "misc2":
		return bitbase.CompressionMisc2, nil
	default:
		return 0, fmt.Errorf("bbgen: unknown compression %q", s)
	}
}
