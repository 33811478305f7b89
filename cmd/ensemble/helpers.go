package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joss/ensemble/internal/engine"
	"github.com/joss/ensemble/internal/render"
)

// getEngine builds the engine on first use. Commands that never touch
// the engine (version, help) stay cheap and never open the store.
func getEngine() *engine.Engine {
	if eng != nil {
		return eng
	}
	var err error
	eng, err = engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return eng
}

func newRenderer() *render.Renderer {
	return render.New(pretty)
}

// exitOnError prints the error to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// readSource loads operation source from a file argument, or stdin
// when the argument is "-" or absent.
func readSource(args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
