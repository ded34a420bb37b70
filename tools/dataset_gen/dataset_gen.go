// dataset_gen is a tiny helper utility to generate deterministic load
// datasets for standalone benchmarking of kvcached (outside `go test`).
// It emits newline-delimited JSON {key, value, ttlSec} records shaped for
// the batch-set endpoint, ready to be chunked into request bodies by a
// load generator.
//
// Usage:
//
//	go run ./tools/dataset_gen -n 1000000 -dist=zipf -seed=42 -out items.ndjson
//
// Flags:
//
//	-n       number of records to generate (default 1e6)
//	-dist    key distribution: "uniform" or "zipf" (default uniform)
//	-zipfs   Zipf s parameter (>1)  (default 1.2)
//	-zipfv   Zipf v parameter (>0)  (default 1.0)
//	-vsize   value payload size in bytes (default 64)
//	-ttl     ttlSec to stamp on every record; 0 omits the field
//	-seed    RNG seed (default current time)
//	-out     output file (default stdout)
//
// The program is embarrassingly simple but placed under version control so
// that any contributor can regenerate the exact dataset used in performance
// regressions hunting.
//
// © 2025 kvshard authors. MIT License.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"
)

type record struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	TTLSec int    `json:"ttlSec,omitempty"`
}

func main() {
	var (
		n       = flag.Int("n", 1_000_000, "number of records to generate")
		dist    = flag.String("dist", "uniform", "distribution: uniform or zipf")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>0)")
		vsize   = flag.Int("vsize", 64, "value payload size in bytes")
		ttl     = flag.Int("ttl", 0, "ttlSec for every record; 0 omits the field")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var gen func() uint64
	switch *dist {
	case "uniform":
		gen = rnd.Uint64
	case "zipf":
		if *zipfS <= 1.0 || *zipfV <= 0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >0")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, ^uint64(0))
		gen = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()
	enc := json.NewEncoder(w)

	payload := strings.Repeat("v", *vsize)
	for i := 0; i < *n; i++ {
		rec := record{
			Key:    fmt.Sprintf("k%016x", gen()),
			Value:  payload,
			TTLSec: *ttl,
		}
		if err := enc.Encode(rec); err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
	}
}
