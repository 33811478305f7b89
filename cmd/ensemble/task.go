package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/engine"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Task inspection and control",
	}

	// ensemble task get <id>
	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task snapshot",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			t, err := getEngine().Task(args[0])
			if err != nil {
				exitOnError(err)
			}
			fmt.Print(newRenderer().Task(t))
		},
	}

	// ensemble task list
	var (
		state  string
		limit  int
		offset int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			tasks := getEngine().Tasks(domain.TaskState(state), limit, offset)
			fmt.Print(newRenderer().Tasks(tasks))
		},
	}
	listCmd.Flags().StringVar(&state, "state", "", "Filter by state (QUEUED|RUNNING|COMPLETED|FAILED)")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Max tasks to show")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Skip the first N tasks")

	// ensemble task watch <id>
	watchCmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream a task's progress events",
		Long:  "Stream progress events. Attaching to a finished task replays its full history.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			watchTask(getEngine(), args[0])
		},
	}

	// ensemble task cancel <id>
	cancelCmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or running task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := getEngine().CancelTask(args[0]); err != nil {
				exitOnError(err)
			}
			fmt.Printf("✓ Cancellation requested: %s\n", args[0])
		},
	}

	cmd.AddCommand(getCmd, listCmd, watchCmd, cancelCmd)
	return cmd
}

// watchTask streams events until the terminal one, then prints the
// final snapshot.
func watchTask(e *engine.Engine, id string) {
	events, err := e.Watch(id)
	if err != nil {
		exitOnError(err)
	}

	r := newRenderer()
	for ev := range events {
		fmt.Print(r.Event(ev))
	}

	t, err := e.Task(id)
	if err != nil {
		exitOnError(err)
	}
	fmt.Print(r.Task(t))
}
