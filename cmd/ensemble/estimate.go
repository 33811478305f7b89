package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/estimate"
)

func estimateCmd() *cobra.Command {
	var (
		lines      int
		sourceKind string
		targetKind string
		provider   string
		strategy   string
	)

	cmd := &cobra.Command{
		Use:   "estimate [file]",
		Short: "Project cost and time before running",
		Long: `Project token count, cost and wall time for an operation without
calling any provider. Size comes from --lines, or from the given file.

Examples:
  ensemble estimate --lines 10000 --source-kind java --target-kind go
  ensemble estimate app.py --source-kind python --provider deepseek-coder
  ensemble estimate --lines 5000 --source-kind python --strategy consensus`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, err := domain.ParseStrategy(strategy)
			if err != nil {
				exitOnError(err)
			}

			e := getEngine()

			var est estimate.Estimate
			if len(args) > 0 {
				source, rerr := readSource(args)
				if rerr != nil {
					exitOnError(rerr)
				}
				est, err = e.EstimateOperation(domain.Operation{
					Source:     source,
					SourceKind: sourceKind,
					TargetKind: targetKind,
				}, provider, st)
			} else {
				est, err = e.EstimateLines(lines, sourceKind, targetKind, provider, st)
			}
			if err != nil {
				exitOnError(err)
			}

			fmt.Print(newRenderer().Estimate(est))
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 1000, "Source size in lines")
	cmd.Flags().StringVar(&sourceKind, "source-kind", "", "Source language or format")
	cmd.Flags().StringVar(&targetKind, "target-kind", "", "Target language")
	cmd.Flags().StringVarP(&provider, "provider", "p", "gpt-4o", "Provider to cost against")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "quality_first", "Dispatch strategy")
	return cmd
}
