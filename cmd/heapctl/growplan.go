package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/grow"
	"github.com/joshuapare/heapkit/heap/region"
	"github.com/joshuapare/heapkit/internal/config"
)

var (
	planBase    string
	planInitial string
	planLimit   string
)

func init() {
	cmd := newGrowPlanCmd()
	cmd.Flags().StringVar(&planBase, "base", "0x1000", "Heap base address")
	cmd.Flags().StringVar(&planInitial, "initial", "4KiB", "Initial heap size")
	cmd.Flags().StringVar(&planLimit, "limit", "1MiB", "How far above the base the heap may grow")
	rootCmd.AddCommand(cmd)
}

func newGrowPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grow-plan",
		Short: "Print the doubling growth schedule",
		Long: `The grow-plan command prints every region the doubling policy would
step through, from the initial size until the limit stops it.

Example:
  heapctl grow-plan --initial 4KiB --limit 1MiB
  heapctl grow-plan --base 0 --initial 1 --limit 8 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrowPlan()
		},
	}
	return cmd
}

// planStep is one row of the schedule.
type planStep struct {
	Step   int           `json:"step"`
	Region region.Region `json:"region"`
	Delta  region.Region `json:"delta"`
}

func runGrowPlan() error {
	base, err := config.ParseSize(planBase)
	if err != nil {
		return fmt.Errorf("--base: %w", err)
	}
	initial, err := config.ParseSize(planInitial)
	if err != nil {
		return fmt.Errorf("--initial: %w", err)
	}
	span, err := config.ParseSize(planLimit)
	if err != nil {
		return fmt.Errorf("--limit: %w", err)
	}

	start, err := region.New(uintptr(base), uintptr(initial))
	if err != nil {
		return err
	}
	limit, err := region.New(uintptr(base), uintptr(span))
	if err != nil {
		return fmt.Errorf("--limit: %w", err)
	}

	prev := start
	var steps []planStep
	for i, r := range grow.Plan(start, limit.End()) {
		steps = append(steps, planStep{
			Step:   i + 1,
			Region: r,
			Delta:  region.FromBounds(prev.End(), r.End()),
		})
		prev = r
	}

	if jsonOut {
		return printJSON(steps)
	}

	printInfo("Start: %s (%s)\n", start, humanize.IBytes(uint64(start.Size)))
	for _, s := range steps {
		printInfo("%3d  %s  %10s  +%s\n", s.Step, s.Region,
			humanize.IBytes(uint64(s.Region.Size)), humanize.IBytes(uint64(s.Delta.Size)))
	}
	printInfo("%d step(s) until %#x\n", len(steps), limit.End())
	return nil
}
