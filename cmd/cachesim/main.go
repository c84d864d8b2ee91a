// Command cachesim runs a trace-driven two-level cache hierarchy simulation
// and reports its final contents and measurements, matching the positional
// argument and output conventions of the reference simulator.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/internal/addr"
	"github.com/sarchlab/cachesim/monitoring"
	"github.com/sarchlab/cachesim/recording"
	"github.com/sarchlab/cachesim/report"
	"github.com/sarchlab/cachesim/trace"
)

var (
	dbPath      string
	monitorPort int
	openBrowser bool
	cpuProfile  string
	envFile     string
)

var rootCmd = &cobra.Command{
	Use:   "cachesim BLOCKSIZE L1_SIZE L1_ASSOC L2_SIZE L2_ASSOC PREF_N PREF_M TRACE_FILE",
	Short: "Simulate a two-level cache hierarchy with stream-buffer prefetching over a memory trace.",
	Args:  cobra.ExactArgs(8),
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&dbPath, "db", "", "record measurements and per-access detail to a SQLite database file named <path>.sqlite3")
	rootCmd.Flags().IntVar(&monitorPort, "monitor-port", 0, "start the monitoring dashboard on this port (0 leaves it off unless --open is set; ports below 1000 pick a random port)")
	rootCmd.Flags().BoolVar(&openBrowser, "open", false, "open the monitoring dashboard in a browser (implies the dashboard is started)")
	rootCmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "write a CPU profile of the run to this path")
	rootCmd.Flags().StringVar(&envFile, "env", "", "load environment variables from this .env file before running")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch err.(type) {
	case *addr.ConfigError:
		return 2
	case *trace.FormatError:
		return 3
	case *trace.IOError:
		return 4
	default:
		return 1
	}
}

func run(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	params, err := parseParams(args)
	if err != nil {
		return err
	}

	l1, l2, err := buildHierarchy(params)
	if err != nil {
		return err
	}

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			return fmt.Errorf("creating cpu profile %s: %w", cpuProfile, err)
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("starting cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	var rec recording.Recorder
	if dbPath != "" {
		rec = recording.New(dbPath)
		rec.CreateTable("measurements", recording.MeasurementRow{})
		rec.CreateTable("accesses", recording.AccessRow{})
	}

	state := &runState{l1: l1, l2: l2, hasL2: params.hasL2}

	var mon *monitoring.Monitor
	if monitorPort != 0 || openBrowser {
		mon = monitoring.New(state)
		bar := mon.CreateProgressBar("trace", 0)
		state.bar = bar

		port := mon.WithPortNumber(monitorPort).StartServer()
		if openBrowser {
			if err := browser.OpenURL(fmt.Sprintf("http://localhost:%d", port)); err != nil {
				fmt.Fprintf(os.Stderr, "failed to open browser: %v\n", err)
			}
		}
	}

	handleSignals()

	f, err := os.Open(params.tracePath)
	if err != nil {
		return &trace.IOError{Path: params.tracePath, Err: err}
	}
	defer f.Close()

	var line uint64
	err = trace.Read(f, func(rec2 trace.Record) error {
		line++
		state.linesProcessed = line
		if state.bar != nil {
			state.bar.IncrementFinished(1)
		}

		result := l1.Access(rec2.Address, rec2.Op)

		if rec != nil {
			rec.InsertData("accesses", recording.AccessRow{
				Line:    line,
				Address: uint64(rec2.Address),
				IsWrite: rec2.Op == cache.Write,
				L1Hit:   result == cache.Hit,
			})
		}

		return nil
	})
	if err != nil {
		return err
	}

	printReport(l1, l2, params.hasL2)

	if rec != nil {
		recordMeasurements(rec, l1, l2, params.hasL2)
		rec.Flush()
	}

	return nil
}

// runState implements monitoring.StateProvider over the live cache levels.
type runState struct {
	l1             *cache.Cache
	l2             *cache.Cache
	hasL2          bool
	linesProcessed uint64
	bar            *monitoring.ProgressBar
}

func (s *runState) Snapshot() monitoring.Snapshot {
	snap := monitoring.Snapshot{
		L1:             s.l1.Counters(),
		L1Sets:         s.l1.SetContents(),
		HasL2:          s.hasL2,
		LinesProcessed: s.linesProcessed,
	}

	last := s.l1
	if s.hasL2 {
		snap.L2 = s.l2.Counters()
		snap.L2Sets = s.l2.SetContents()
		last = s.l2
	}
	snap.StreamBuffers = last.StreamBufferContents()

	return snap
}

// params is the parsed, type-checked form of the 8 positional arguments.
type params struct {
	blocksize uint32
	l1Size    uint32
	l1Assoc   uint32
	l2Size    uint32
	l2Assoc   uint32
	prefN     uint32
	prefM     uint32
	hasL2     bool
	tracePath string
}

func parseParams(args []string) (params, error) {
	values := make([]uint64, 7)
	for i := 0; i < 7; i++ {
		v, err := strconv.ParseUint(args[i], 10, 32)
		if err != nil {
			return params{}, &addr.ConfigError{
				Reason: fmt.Sprintf("argument %d (%q) must be a non-negative integer: %v", i+1, args[i], err),
			}
		}
		values[i] = v
	}

	p := params{
		blocksize: uint32(values[0]),
		l1Size:    uint32(values[1]),
		l1Assoc:   uint32(values[2]),
		l2Size:    uint32(values[3]),
		l2Assoc:   uint32(values[4]),
		prefN:     uint32(values[5]),
		prefM:     uint32(values[6]),
		tracePath: args[7],
	}
	p.hasL2 = !(p.l2Size == 0 && p.l2Assoc == 0)

	return p, nil
}

// buildHierarchy constructs L1 (and L2, if present) per spec.md §6: the
// last level before memory owns the prefetcher.
func buildHierarchy(p params) (l1 *cache.Cache, l2 *cache.Cache, err error) {
	if !p.hasL2 {
		l1, err = cache.MakeBuilder().
			WithBlockSize(p.blocksize).
			WithSize(p.l1Size).
			WithAssoc(p.l1Assoc).
			WithPrefetcher(p.prefN, p.prefM).
			Build()

		return l1, nil, err
	}

	l2, err = cache.MakeBuilder().
		WithBlockSize(p.blocksize).
		WithSize(p.l2Size).
		WithAssoc(p.l2Assoc).
		WithPrefetcher(p.prefN, p.prefM).
		Build()
	if err != nil {
		return nil, nil, err
	}

	l1, err = cache.MakeBuilder().
		WithBlockSize(p.blocksize).
		WithSize(p.l1Size).
		WithAssoc(p.l1Assoc).
		WithLowerLevel(l2).
		Build()
	if err != nil {
		return nil, nil, err
	}

	return l1, l2, nil
}

func printReport(l1, l2 *cache.Cache, hasL2 bool) {
	r := report.New(os.Stdout)

	r.WriteCacheContents("L1", l1.SetContents())

	last := l1
	if hasL2 {
		r.WriteCacheContents("L2", l2.SetContents())
		last = l2
	}

	buffers := last.StreamBufferContents()
	reportBuffers := make([]report.Buffer, len(buffers))
	for i, b := range buffers {
		reportBuffers[i] = report.Buffer{Blocks: b.Blocks}
	}

	r.WriteStreamBuffers(last.PrefN(), reportBuffers)

	var l2Counters cache.Counters
	if hasL2 {
		l2Counters = l2.Counters()
	}
	r.WriteMeasurements(l1.Counters(), l2Counters, hasL2)
}

func recordMeasurements(rec recording.Recorder, l1, l2 *cache.Cache, hasL2 bool) {
	l1c := l1.Counters()

	row := recording.MeasurementRow{
		L1Reads:       l1c.Reads,
		L1ReadMisses:  l1c.ReadMisses,
		L1Writes:      l1c.Writes,
		L1WriteMisses: l1c.WriteMisses,
		L1Writebacks:  l1c.Writebacks,
		L1Prefetches:  l1c.Prefetches,
	}

	last := l1c
	if hasL2 {
		l2c := l2.Counters()
		row.L2Reads = l2c.Reads
		row.L2ReadMisses = l2c.ReadMisses
		row.L2Writes = l2c.Writes
		row.L2WriteMisses = l2c.WriteMisses
		row.L2Writebacks = l2c.Writebacks
		row.L2Prefetches = l2c.Prefetches
		last = l2c
	}

	row.MemoryTraffic = last.ReadMisses + last.WriteMisses + last.Writebacks + last.Prefetches

	rec.InsertData("measurements", row)
}

// handleSignals makes sure a SIGINT/SIGTERM mid-run still lets the recorder
// flush via its atexit registration instead of losing buffered rows.
func handleSignals() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		log.Println("interrupted, exiting")
		atexit.Exit(130)
	}()
}
