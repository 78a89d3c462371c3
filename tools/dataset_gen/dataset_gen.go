// dataset_gen is a tiny helper utility to generate deterministic multi-peer
// edit traces for standalone benchmarking of the CRDT engine (outside
// `go test`). Each simulated peer performs a sequence of text inserts and
// map writes against its own Document, then exports its updates as a binary
// blob; the blobs can be fed to an external merge benchmark or fuzzer
// without needing to re-run the generator.
//
// Usage:
//
//	go run ./tools/dataset_gen -peers 4 -ops 50000 -dist zipf -seed 42 -out ./dataset
//
// Flags:
//
//	-peers   number of simulated peers (default 4)
//	-ops     total operations spread across peers (default 1e5)
//	-dist    key-selection distribution for map writes: "uniform" or "zipf"
//	-zipfs   Zipf s parameter (>1)  (default 1.2)
//	-zipfv   Zipf v parameter (>=1) (default 1.0)
//	-keys    distinct map keys available to each peer (default 1024)
//	-seed    RNG seed (default current time)
//	-out     output directory, one file per peer (default "./dataset")
//
// The program is embarrassingly simple but placed under version control so
// that any contributor can regenerate the exact trace used in a performance
// regression hunt.
//
// © 2025 arena-cache authors. MIT License.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	loro "github.com/loro-dev/loro-go"
	"github.com/loro-dev/loro-go/encoding"
	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
)

func main() {
	var (
		peers   = flag.Int("peers", 4, "number of simulated peers")
		ops     = flag.Int("ops", 100_000, "total operations spread across peers")
		dist    = flag.String("dist", "uniform", "key distribution: uniform or zipf")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		keys    = flag.Int("keys", 1024, "distinct map keys available to each peer")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outDir  = flag.String("out", "./dataset", "output directory, one file per peer")
	)
	flag.Parse()

	if *peers <= 0 {
		fmt.Fprintln(os.Stderr, "peers must be >0")
		os.Exit(1)
	}

	rnd := rand.New(rand.NewSource(*seedVal))

	var keyOf func() int
	switch *dist {
	case "uniform":
		keyOf = func() int { return rnd.Intn(*keys) }
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, uint64(*keys-1))
		keyOf = func() int { return int(z.Uint64()) }
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "cannot create output dir:", err)
		os.Exit(1)
	}

	docs := make([]*loro.Document, *peers)
	for p := range docs {
		docs[p] = loro.NewDocument(loro.WithPeerID(id.Peer(p + 1)))
	}

	for i := 0; i < *ops; i++ {
		doc := docs[i%*peers]
		if rnd.Intn(2) == 0 {
			text := doc.GetText("t")
			if err := text.Insert(rnd.Intn(text.Len()+1), string(rune('a'+rnd.Intn(26)))); err != nil {
				fmt.Fprintln(os.Stderr, "text insert:", err)
				os.Exit(1)
			}
		} else {
			m := doc.GetMap("m")
			k := fmt.Sprintf("k%d", keyOf())
			if err := m.Set(k, arena.Value{Kind: arena.ValueInt, I64: int64(i)}); err != nil {
				fmt.Fprintln(os.Stderr, "map set:", err)
				os.Exit(1)
			}
		}
		if err := doc.Commit(); err != nil {
			fmt.Fprintln(os.Stderr, "commit:", err)
			os.Exit(1)
		}
	}

	for p, doc := range docs {
		buf, err := doc.Export(encoding.ModeUpdates)
		if err != nil {
			fmt.Fprintln(os.Stderr, "export:", err)
			os.Exit(1)
		}
		path := filepath.Join(*outDir, fmt.Sprintf("peer-%d.loro", p+1))
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "write:", err)
			os.Exit(1)
		}
	}
}
