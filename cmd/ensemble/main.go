// Package main provides the ensemble CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joss/ensemble/internal/config"
	"github.com/joss/ensemble/internal/engine"
	"github.com/joss/ensemble/internal/metrics"
)

var (
	version = "0.1.0"

	cfgPath     string
	pretty      = true
	metricsPort int

	cfg config.Config
	eng *engine.Engine
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ensemble",
		Short: "Multi-provider AI orchestration engine",
		Long: `Ensemble dispatches translate and analyze operations across multiple
AI model providers under a selectable strategy, merges their answers,
and caches results so identical work is never paid for twice.

Use 'ensemble submit' to queue an operation.
Use 'ensemble provider list' to see available providers.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}

			if metricsPort > 0 {
				srv := metrics.NewServer(metricsPort)
				srv.Start()
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if eng != nil {
				eng.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")
	rootCmd.PersistentFlags().IntVar(&metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port")

	rootCmd.AddGroup(
		&cobra.Group{ID: "work", Title: "Work:"},
		&cobra.Group{ID: "providers", Title: "Providers:"},
		&cobra.Group{ID: "tooling", Title: "Tooling:"},
	)

	submit := submitCmd()
	submit.GroupID = "work"
	rootCmd.AddCommand(submit)

	taskC := taskCmd()
	taskC.GroupID = "work"
	rootCmd.AddCommand(taskC)

	provider := providerCmd()
	provider.GroupID = "providers"
	rootCmd.AddCommand(provider)

	est := estimateCmd()
	est.GroupID = "tooling"
	rootCmd.AddCommand(est)

	cacheC := cacheCmd()
	cacheC.GroupID = "tooling"
	rootCmd.AddCommand(cacheC)

	metricsC := metricsCmd()
	metricsC.GroupID = "tooling"
	rootCmd.AddCommand(metricsC)

	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show ensemble version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ensemble version %s\n", version)
		},
	}
}
