// walcat prints the intents recorded in an entry journal, one per line.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"matchbook/domain/intent"
	"matchbook/infra/codec"
	entrywal "matchbook/infra/wal/entry"
)

type filter struct {
	instrument string
	kind       intent.Kind
	from       uint64
}

func (f filter) match(seq uint64, in intent.Intent) bool {
	if seq < f.from {
		return false
	}
	if f.instrument != "" && in.InstrumentName() != f.instrument {
		return false
	}
	return f.kind == 0 || in.Kind == f.kind
}

func main() {
	dir := flag.String("dir", "data/journal", "journal directory")
	codecName := flag.String("codec", "proto", "payload codec the journal was written with")
	instrument := flag.String("instrument", "", "only print intents for this instrument")
	kind := flag.String("kind", "", "only print this intent kind, e.g. ADD_ORDER")
	from := flag.Uint64("from", 0, "skip records below this sequence")
	flag.Parse()

	f := filter{instrument: *instrument, from: *from}
	if *kind != "" {
		k, err := intent.ParseKind(*kind)
		if err != nil {
			fmt.Fprintln(os.Stderr, "walcat:", err)
			os.Exit(2)
		}
		f.kind = k
	}
	c, err := codec.ByName(*codecName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "walcat:", err)
		os.Exit(2)
	}

	n, last, err := dump(os.Stdout, *dir, c, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "walcat:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d records printed, last seq %d\n", n, last)
}

// dump writes "seq time json" for every matching record.
func dump(w io.Writer, dir string, c codec.Codec, f filter) (printed int, last uint64, err error) {
	text := codec.JSON{}
	last, err = entrywal.ReplayIntents(dir, c, func(seq uint64, at time.Time, in intent.Intent) error {
		if !f.match(seq, in) {
			return nil
		}
		b, err := text.EncodeIntent(in)
		if err != nil {
			return fmt.Errorf("record %d: %w", seq, err)
		}
		printed++
		_, err = fmt.Fprintf(w, "%d\t%s\t%s\n", seq, at.UTC().Format(time.RFC3339Nano), b)
		return err
	})
	return printed, last, err
}
