package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/drpcorg/spindex"
	"github.com/drpcorg/spindex/utils"
	"github.com/ergochat/readline"
	"github.com/prometheus/client_golang/prometheus"
)

// REPL per se.
type REPL struct {
	Opts spindex.Options

	// current is swapped by open/close and read by every command
	current  atomic.Pointer[spindex.Index]
	rl       *readline.Instance
	registry *prometheus.Registry
	pebble   prometheus.Collector
	out      io.Writer
}

var ErrNotOpen = errors.New("no index open")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("open"),
	readline.PcItem("close"),

	readline.PcItem("add"),
	readline.PcItem("remove"),
	readline.PcItem("search",
		readline.PcItem("intersecting"),
		readline.PcItem("within"),
		readline.PcItem("covering"),
	),
	readline.PcItem("near"),
	readline.PcItem("dist"),

	readline.PcItem("count"),
	readline.PcItem("bbox"),
	readline.PcItem("stats"),
	readline.PcItem("validate"),
	readline.PcItem("dump"),
	readline.PcItem("rebuild"),
	readline.PcItem("clear"),

	readline.PcItem("metrics"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func (repl *REPL) index() *spindex.Index {
	return repl.current.Load()
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "▣ ",
		HistoryFile:     ".spindex_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	var err error
	if repl.index() != nil {
		err = repl.CommandClose(nil)
	}
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return err
}

// REPL reads and runs one command.
func (repl *REPL) REPL() (err error) {
	var line string
	line, err = repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return repl.Run(line)
}

// Run executes one command line.
func (repl *REPL) Run(line string) (err error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd := args[0]
	args = args[1:]
	if cmd != "open" && cmd != "help" && cmd != "exit" && cmd != "quit" && cmd != "metrics" && repl.index() == nil {
		return ErrNotOpen
	}
	switch cmd {
	case "help":
		repl.CommandHelp()
	// ----- index open/close -----
	case "open":
		err = repl.CommandOpen(args)
	case "close":
		err = repl.CommandClose(args)
	case "exit", "quit":
		if repl.index() != nil {
			err = repl.CommandClose(args)
		}
		if err == nil {
			err = io.EOF
		}
	// ----- entries -----
	case "add":
		err = repl.CommandAdd(args)
	case "remove", "rm":
		err = repl.CommandRemove(args)
	// ----- queries -----
	case "search":
		err = repl.CommandSearch(args)
	case "near":
		err = repl.CommandNear(args)
	case "dist":
		err = repl.CommandDist(args)
	case "count":
		err = repl.CommandCount(args)
	case "bbox":
		err = repl.CommandBBox(args)
	// ----- maintenance -----
	case "stats":
		err = repl.CommandStats(args)
	case "validate":
		err = repl.CommandValidate(args)
	case "dump":
		err = repl.index().Dump(repl.out)
	case "rebuild":
		err = repl.CommandRebuild(args)
	case "clear":
		err = repl.CommandClear(args)
	case "metrics":
		err = repl.CommandMetrics(args)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	return
}

func main() {
	dir := flag.String("dir", "", "index directory to open on start")
	maxFanout := flag.Int("max", 0, "max node fanout for a new index")
	minFanout := flag.Int("min", 0, "min node fanout for a new index")
	split := flag.String("split", "quadratic", "split mode for a new index: quadratic or greene")
	readOnly := flag.Bool("ro", false, "open read-only")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	repl := REPL{registry: prometheus.NewRegistry(), out: os.Stdout}
	repl.Opts = spindex.Options{
		MaxFanout: *maxFanout,
		MinFanout: *minFanout,
		ReadOnly:  *readOnly,
		Logger:    utils.NewDefaultLogger(level),
	}
	var err error
	if repl.Opts.SplitMode, err = parseSplit(*split); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-2)
	}

	if err = repl.Open(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	if *dir != "" {
		err = repl.CommandOpen([]string{*dir})
	}

	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
		err = repl.REPL()
	}
	if err = repl.Close(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
}
