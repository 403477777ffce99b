// Package main provides the entry point for frontendsim, a decoupled
// front-end simulator: branch prediction, Fetch Target construction, the
// decoupled front-end FSM, the uop cache and the uop queue, driven from a
// recorded instruction trace.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/frontendsim/config"
	"github.com/sarchlab/frontendsim/frontend"
	"github.com/sarchlab/frontendsim/op"
	"github.com/sarchlab/frontendsim/sim"
	"github.com/sarchlab/frontendsim/stats"
)

var (
	configPath = flag.String("config", "", "Path to front-end configuration JSON file")
	cyclesFlag = flag.Uint64("cycles", 0, "Cycles to run, 0 for until the trace is exhausted")
	csvPath    = flag.String("csv", "", "Path to write a per-core statistics CSV report")
	verbose    = flag.Bool("v", false, "Verbose per-cycle tracing")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: frontendsim [options] <trace.json>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	tracePath := flag.Arg(0)

	entries, err := loadTrace(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading trace: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if *verbose {
		fmt.Printf("Loaded trace: %s (%d ops)\n", tracePath, len(entries))
	}

	exitCode := run(cfg, entries)
	os.Exit(exitCode)
}

func loadTrace(path string) ([]frontend.TraceEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var entries []frontend.TraceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return entries, nil
}

func run(cfg *config.Config, entries []frontend.TraceEntry) int {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	pool := op.NewPool()
	startPC := uint64(0)
	if len(entries) > 0 {
		startPC = entries[0].PC
	}

	tf := frontend.NewTraceFrontend(pool, 0, 0, entries)
	core := sim.NewCore(0, cfg, tf, startPC)
	if *verbose {
		core.Trace(os.Stderr)
	}
	core.Start(startPC)

	s := sim.New(core)
	s.Run(*cyclesFlag)

	printReport(s, core)

	if *csvPath != "" {
		if err := writeCSV(core); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing CSV report: %v\n", err)
			return 1
		}
	}

	return 0
}

func printReport(s *sim.Sim, core *sim.Core) {
	bpStats := core.Predictor.Stats()
	ucStats := core.UopCache.Stats()

	fmt.Printf("Cycles:              %d\n", s.Cycle)
	fmt.Printf("Branch accuracy:     %.2f%%\n", bpStats.Accuracy())
	fmt.Printf("Misprediction rate:  %.2f%%\n", bpStats.MispredictionRate())
	fmt.Printf("BTB hit rate:        %.2f%%\n", bpStats.BTBHitRate())
	fmt.Printf("Uop cache hit rate:  %.2f%%\n", ucStats.HitRate())
	fmt.Printf("Recoveries:          %d\n", core.Counters.Get("recoveries"))
	fmt.Printf("Fetch Targets built: %d\n", core.Counters.Get("fts_drained"))
}

func writeCSV(core *sim.Core) error {
	f, err := os.Create(*csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return stats.WriteCSV(f, stats.Report{ProcID: core.ProcID, Counters: core.Counters})
}
