package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Result cache inspection",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit/miss counters",
		Run: func(cmd *cobra.Command, args []string) {
			s := getEngine().CacheStats(context.Background())
			fmt.Print(newRenderer().CacheStats(s))
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop all cached results",
		Run: func(cmd *cobra.Command, args []string) {
			n := getEngine().ClearCache(context.Background())
			fmt.Printf("✓ Removed %d cached entries\n", n)
		},
	}

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
