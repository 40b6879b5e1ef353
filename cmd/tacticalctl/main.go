// Command tacticalctl is a REPL-style shell for inspecting a local
// tactical chain store, mirroring the teacher's cmd/turdb/pkg/cli REPL
// shape (read a line, dispatch on a leading dot-command, print a
// result) but over chain inspection instead of SQL execution.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"tactical/pkg/chainkey"
	"tactical/pkg/kv/boltkv"
	"tactical/pkg/store"
)

func main() {
	dbPath := flag.String("db", "tactical.db", "bbolt database file to inspect")
	flag.Parse()

	engine, err := boltkv.Open(*dbPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer engine.Close()

	st := store.New(engine)
	repl := NewREPL(st, os.Stdin, os.Stdout, os.Stderr)
	repl.Run()
}

// REPL reads dot-commands from input and prints results to output.
type REPL struct {
	store  *store.Store
	input  io.Reader
	output io.Writer
	errOut io.Writer
}

// NewREPL creates a REPL bound to the given store and I/O streams.
func NewREPL(st *store.Store, input io.Reader, output, errOut io.Writer) *REPL {
	return &REPL{store: st, input: input, output: output, errOut: errOut}
}

// Run prints a banner and processes lines from input until EOF.
func (r *REPL) Run() {
	fmt.Fprintln(r.output, "tacticalctl — enter \".help\" for commands")
	sc := bufio.NewScanner(r.input)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		r.dispatch(line)
	}
}

func (r *REPL) dispatch(line string) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case ".help":
		fmt.Fprintln(r.output, ".inspect <key>        show the persisted ChainState of chain {\"key\": <key>}")
		fmt.Fprintln(r.output, ".fetch <key>          show the current record of chain {\"key\": <key>}")
		fmt.Fprintln(r.output, ".help                 show this message")
		fmt.Fprintln(r.output, ".exit                 quit")
	case ".exit", ".quit":
		os.Exit(0)
	case ".inspect":
		r.inspect(args)
	case ".fetch":
		r.fetch(args)
	default:
		fmt.Fprintf(r.errOut, "unknown command %q; try .help\n", cmd)
	}
}

func (r *REPL) parseKey(raw string) (chainkey.ChainKey, bool) {
	key, err := chainkey.New(map[string]any{"key": raw})
	if err != nil {
		fmt.Fprintf(r.errOut, "invalid key: %v\n", err)
		return chainkey.ChainKey{}, false
	}
	return key, true
}

func (r *REPL) inspect(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.errOut, "usage: .inspect <key>")
		return
	}
	key, ok := r.parseKey(args[0])
	if !ok {
		return
	}
	state, found, err := r.store.Inspect(context.Background(), key)
	if err != nil {
		fmt.Fprintf(r.errOut, "inspect failed: %v\n", err)
		return
	}
	if !found {
		fmt.Fprintln(r.output, "no chain state for key")
		return
	}
	fmt.Fprintf(r.output, "current: %s\n", state.Current)
	if len(state.Outdated) == 0 {
		fmt.Fprintln(r.output, "outdated: (none)")
		return
	}
	fmt.Fprintln(r.output, "outdated:")
	for _, v := range state.Outdated {
		fmt.Fprintf(r.output, "  %s\n", v)
	}
}

func (r *REPL) fetch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.errOut, "usage: .fetch <key>")
		return
	}
	key, ok := r.parseKey(args[0])
	if !ok {
		return
	}
	rec, err := r.store.Fetch(context.Background(), key, nil)
	if err != nil {
		fmt.Fprintf(r.errOut, "fetch failed: %v\n", err)
		return
	}
	if rec == nil {
		fmt.Fprintln(r.output, "no record")
		return
	}
	fmt.Fprintf(r.output, "version: %s\nvalue: %v\ncontext: %v\n", rec.Version, rec.Value, rec.Context)
}
