package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/ensemble/internal/metrics"
)

func metricsCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve Prometheus metrics until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			srv := metrics.NewServer(port)
			srv.Start()
			fmt.Printf("▶ Serving metrics on http://localhost:%d/metrics\n", port)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				exitOnError(err)
			}
			fmt.Println("✓ Metrics server stopped")
		},
	}

	cmd.Flags().IntVar(&port, "port", 9090, "Listen port")
	return cmd
}
