package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/heap/arena"
	"github.com/joshuapare/heapkit/internal/config"
)

var (
	simConfig  string
	simEngine  string
	simSize    string
	simLimit   string
	simOps     string
	simMetrics bool
)

func init() {
	rootCmd.AddCommand(newSimulateCmd())
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an allocation script against a heap",
		Long: `The simulate command maps a block of memory, initialises a heap at its
start and runs an allocation script against it. The heap grows into the rest
of the mapping on demand.

Script lines:
  a <size> [align]   allocate; allocations are numbered from 0
  d <index>          free an earlier allocation
  # comment

Example:
  heapctl simulate --size 4KiB --limit 64KiB --ops script.txt
  printf 'a 100\na 5000\nd 0\n' | heapctl simulate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := simulateConfig(cmd)
			if err != nil {
				return err
			}
			return runSimulate(cfg, os.Stdin)
		},
	}
	cmd.Flags().StringVar(&simConfig, "config", "", "YAML file with heap settings")
	cmd.Flags().StringVar(&simEngine, "engine", "", "Block engine: firstfit or bump")
	cmd.Flags().StringVar(&simSize, "size", "", "Initial heap size (e.g. 4096, 4KiB, 0x1000)")
	cmd.Flags().StringVar(&simLimit, "limit", "", "How far above the base the heap may grow (0 disables growth)")
	cmd.Flags().StringVar(&simOps, "ops", "", "Operation script (default: stdin)")
	cmd.Flags().BoolVar(&simMetrics, "metrics", false, "Print Prometheus metrics after the run")
	return cmd
}

// simulateConfig loads --config and applies any flags that were set on top.
func simulateConfig(cmd *cobra.Command) (config.Heap, error) {
	cfg := config.Default()
	if simConfig != "" {
		var err error
		if cfg, err = config.Load(simConfig); err != nil {
			return config.Heap{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine = simEngine
	}
	if flags.Changed("size") {
		n, err := config.ParseSize(simSize)
		if err != nil {
			return config.Heap{}, fmt.Errorf("--size: %w", err)
		}
		cfg.Size = config.Size(n)
	}
	if flags.Changed("limit") {
		n, err := config.ParseSize(simLimit)
		if err != nil {
			return config.Heap{}, fmt.Errorf("--limit: %w", err)
		}
		cfg.Limit = config.Size(n)
	}
	if flags.Changed("ops") {
		cfg.Ops = simOps
	}
	return cfg, cfg.Validate()
}

func newEngine(name string) (alloc.Engine, error) {
	switch name {
	case config.EngineFirstFit:
		return alloc.NewFirstFit(), nil
	case config.EngineBump:
		return alloc.NewBump(), nil
	}
	return nil, fmt.Errorf("unknown engine %q", name)
}

// simulateResult is the JSON output of simulate.
type simulateResult struct {
	Engine      string        `json:"engine"`
	Base        uintptr       `json:"base"`
	Limit       uintptr       `json:"limit"`
	Heap        heap.Snapshot `json:"heap"`
	Live        int           `json:"live"`
	Allocations []allocation  `json:"allocations"`
}

func runSimulate(cfg config.Heap, stdin io.Reader) error {
	in := stdin
	if cfg.Ops != "" && cfg.Ops != "-" {
		f, err := os.Open(cfg.Ops)
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		in = f
	}
	ops, err := parseScript(in)
	if err != nil {
		return fmt.Errorf("failed to parse script: %w", err)
	}

	engine, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}

	mem, err := arena.Map(int(cfg.Span()))
	if err != nil {
		return err
	}
	defer mem.Close()

	base := mem.Region().Base
	var limit uintptr
	if cfg.Limit > 0 {
		limit = base + uintptr(cfg.Limit)
	}

	printVerbose("Mapped %s at %#x\n", humanize.IBytes(uint64(mem.Len())), base)

	h := heap.NewLocked(heap.New(engine, heap.WithLimit(limit), heap.WithLogger(logger)))
	if err := h.Init(base, uintptr(cfg.Size)); err != nil {
		return err
	}

	sim := &simulation{heap: h, arena: mem}
	if err := sim.run(ops); err != nil {
		return err
	}

	snap := h.Snapshot()
	if jsonOut {
		return printJSON(simulateResult{
			Engine:      cfg.Engine,
			Base:        base,
			Limit:       limit,
			Heap:        snap,
			Live:        sim.live(),
			Allocations: sim.allocs,
		})
	}

	printSnapshot(cfg.Engine, base, snap, sim)
	if simMetrics {
		return printMetrics(h)
	}
	return nil
}

func printSnapshot(engine string, base uintptr, s heap.Snapshot, sim *simulation) {
	printInfo("Engine:      %s\n", engine)
	printInfo("Region:      %s (base %#x)\n", s.Region, base)
	printInfo("Total:       %s\n", humanize.IBytes(uint64(s.Total)))
	printInfo("Available:   %s\n", humanize.IBytes(uint64(s.Available)))
	printInfo("Used:        %s\n", humanize.IBytes(uint64(s.Used)))
	printInfo("Allocations: %s ok, %s failed, %s live\n",
		humanize.Comma(int64(s.Stats.AllocCalls-s.Stats.AllocFailed)),
		humanize.Comma(int64(s.Stats.AllocFailed)),
		humanize.Comma(int64(sim.live())))
	printInfo("Growth:      %d steps, %s claimed, %d failed\n",
		s.Stats.GrowEvents, humanize.IBytes(s.Stats.GrowBytes), s.Stats.GrowFailed)
}

// printMetrics writes the collector's metrics in the Prometheus text format.
func printMetrics(src heap.Snapshotter) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(heap.NewCollector(src, "heapctl", nil)); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}
