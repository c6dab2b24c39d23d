package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"serialscope/pkg/logger"
)

func runInspect(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	file := fs.String("file", "", "capture file")
	formatName := fs.String("format", "jsonl", "capture format: jsonl or msgpack")
	zstd := fs.Bool("zstd", false, "capture is zstd compressed (implied by a .zst suffix)")
	dump := fs.Bool("dump", false, "print every entry as JSON")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "inspect requires --file")
		return 2
	}
	format, err := logger.ParseFormat(*formatName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintln(stderr, "open capture:", err)
		return 1
	}
	defer f.Close()

	r, err := logger.NewReader(f, format, *zstd || compressedPath(*file))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer r.Close()

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	counts := map[string]int{}
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintln(stderr, "read capture:", err)
			return 1
		}
		counts[entry.Kind]++
		if *dump {
			if err := enc.Encode(entry); err != nil {
				fmt.Fprintln(stderr, "write entry:", err)
				return 1
			}
		}
	}

	if *dump {
		return 0
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(stdout, "%s %d\n", kind, counts[kind])
	}
	return 0
}
