// Command bbprobe loads a directory of bitbases and reports the
// win/draw/loss verdict for one or more positions given as FEN strings,
// the query-side counterpart to bbgen.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/hailam/chessplay/internal/bitbase"
	"github.com/hailam/chessplay/internal/board"
)

func main() {
	var (
		dir        = flag.String("dir", "bitbases", "directory of .btb files")
		cacheSize  = flag.Int("cache-entries", 64, "cluster cache capacity")
		cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
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

	fens := flag.Args()
	if len(fens) == 0 {
		fmt.Fprintln(os.Stderr, "usage: bbprobe [flags] 'fen1' 'fen2' ...")
		os.Exit(2)
	}

	cache, err := bitbase.NewClusterCache(*cacheSize)
	if err != nil {
		log.Fatalf("bbprobe: create cluster cache: %v", err)
	}
	set := bitbase.NewBitbaseSet(*dir, cache)

	for _, fenStr := range fens {
		pos, err := board.ParseFEN(fenStr)
		if err != nil {
			log.Printf("bbprobe: %q: %v", fenStr, err)
			continue
		}
		list, _ := bitbase.DescribePosition(pos)
		name := list.String()
		if list.Len() > 2 {
			if err := set.LoadBitbase(name); err != nil {
				log.Printf("bbprobe: %q: load %s: %v", fenStr, name, err)
			}
			mirrorName := bitbase.MirrorPieceList(list).String()
			if mirrorName != name {
				if err := set.LoadBitbase(mirrorName); err != nil {
					log.Printf("bbprobe: %q: load mirror %s: %v", fenStr, mirrorName, err)
				}
			}
		}
		result := set.GetValueFromBitbase(pos)
		fmt.Printf("%s\t%s\t%s\n", fenStr, name, result)
	}
}
