package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"matchbook/domain/intent"
	"matchbook/service"
	"matchbook/snapshot"
)

const consoleHelp = `commands:
  create_orderbook <instrument>   create a book
  remove_orderbook <instrument>   remove a book and its orders
  book <instrument> [depth]       print the latest published book
  help                            show this text
  stop                            shut the server down`

type dispatcher interface {
	SubmitAndWait(ctx context.Context, in intent.Intent) (service.Result, error)
}

// console is the operator command loop. Book changes go through the order
// manager like any other intent.
type console struct {
	manager dispatcher
	books   *snapshot.Store
	out     io.Writer
	stop    func()
}

func newConsole(m dispatcher, books *snapshot.Store, out io.Writer, stop func()) *console {
	return &console{manager: m, books: books, out: out, stop: stop}
}

// run reads commands from in until stop, EOF or ctx ends.
func (c *console) run(ctx context.Context, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !c.exec(ctx, strings.Fields(sc.Text())) {
			return
		}
	}
}

// exec runs one command and reports whether to keep reading.
func (c *console) exec(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return true
	}
	switch args[0] {
	case "stop":
		fmt.Fprintln(c.out, "stopping")
		c.stop()
		return false
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
	case "create_orderbook", "remove_orderbook":
		if len(args) != 2 {
			fmt.Fprintf(c.out, "usage: %s <instrument>\n", args[0])
			return true
		}
		in := intent.NewCreateBook("console", args[1])
		if args[0] == "remove_orderbook" {
			in = intent.NewRemoveBook("console", args[1])
		}
		c.submit(ctx, in)
	case "book":
		if len(args) < 2 || len(args) > 3 {
			fmt.Fprintln(c.out, "usage: book <instrument> [depth]")
			return true
		}
		depth := 0
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil || n < 0 {
				fmt.Fprintf(c.out, "bad depth %q\n", args[2])
				return true
			}
			depth = n
		}
		c.printBook(args[1], depth)
	default:
		fmt.Fprintf(c.out, "unknown command %q, try help\n", args[0])
	}
	return true
}

func (c *console) submit(ctx context.Context, in intent.Intent) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := c.manager.SubmitAndWait(ctx, in)
	if err != nil {
		fmt.Fprintf(c.out, "%s %s: %v\n", in.Kind, in.Instrument, err)
		return
	}
	if res.Err != nil {
		fmt.Fprintf(c.out, "%s %s: %s: %v\n", in.Kind, in.Instrument, res.Status, res.Err)
		return
	}
	fmt.Fprintf(c.out, "%s %s: %s\n", in.Kind, in.Instrument, res.Status)
}

func (c *console) printBook(instrument string, depth int) {
	snap, ok := c.books.Load(instrument)
	if !ok {
		fmt.Fprintf(c.out, "no book for %s\n", instrument)
		return
	}
	v := snap.View
	fmt.Fprintf(c.out, "%s seq=%d", v.Instrument, snap.Seq)
	if v.HasLastTrade {
		fmt.Fprintf(c.out, " last=%g", v.LastTradePrice)
	}
	fmt.Fprintln(c.out)

	asks := v.Asks
	if depth > 0 && len(asks) > depth {
		asks = asks[:depth]
	}
	for i := len(asks) - 1; i >= 0; i-- {
		fmt.Fprintf(c.out, "  ASK %12g %10d (%d)\n", asks[i].Price, asks[i].TotalQuantity, len(asks[i].Orders))
	}
	fmt.Fprintln(c.out, "  ----")
	for i, l := range v.Bids {
		if depth > 0 && i >= depth {
			break
		}
		fmt.Fprintf(c.out, "  BID %12g %10d (%d)\n", l.Price, l.TotalQuantity, len(l.Orders))
	}
}
