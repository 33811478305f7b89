package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/ensemble/internal/domain"
)

func submitCmd() *cobra.Command {
	var (
		kind       string
		sourceKind string
		targetKind string
		strategy   string
		providers  []string
		categories []string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "submit [file]",
		Short: "Submit an operation as a task",
		Long: `Submit a translate or analyze operation. Source is read from the file
argument, or stdin when the argument is "-" or absent.

Examples:
  ensemble submit --kind translate --source-kind java --target-kind go Main.java
  ensemble submit --kind analyze --source-kind python --strategy consensus app.py
  cat app.py | ensemble submit --kind analyze --source-kind python --watch`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			source, err := readSource(args)
			if err != nil {
				exitOnError(err)
			}

			st, err := domain.ParseStrategy(strategy)
			if err != nil {
				exitOnError(err)
			}

			op := domain.Operation{
				Kind:       domain.OperationKind(kind),
				Source:     source,
				SourceKind: sourceKind,
				TargetKind: targetKind,
				Categories: categories,
			}

			e := getEngine()
			id, err := e.Submit(op, st, providers)
			if err != nil {
				exitOnError(err)
			}

			fmt.Printf("Task queued: %s\n", id)

			if watch {
				watchTask(e, id)
			} else {
				fmt.Printf("  Watch:  ensemble task watch %s\n", id)
				fmt.Printf("  Status: ensemble task get %s\n", id)
			}
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "analyze", "Operation kind (translate|analyze)")
	cmd.Flags().StringVar(&sourceKind, "source-kind", "", "Source language or format")
	cmd.Flags().StringVar(&targetKind, "target-kind", "", "Target language (translate only)")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "quality_first", "Dispatch strategy")
	cmd.Flags().StringSliceVarP(&providers, "providers", "p",
		[]string{"gpt-4o", "claude-3.5-sonnet", "gemini-pro"}, "Candidate provider ids")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "Suggestion categories (analyze only)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream progress until the task finishes")

	return cmd
}
