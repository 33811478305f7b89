package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joss/ensemble/internal/adapter"
	"github.com/joss/ensemble/internal/registry"
)

func providerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Provider registry management",
		Long:  "List, register, update, test, export and import model providers",
	}

	cmd.AddCommand(
		providerListCmd(),
		providerShowCmd(),
		providerAddCmd(),
		providerUpdateCmd(),
		providerRmCmd(),
		providerTestCmd(),
		providerExportCmd(),
		providerImportCmd(),
		providerStatsCmd(),
	)
	return cmd
}

func providerListCmd() *cobra.Command {
	var (
		customOnly  bool
		builtinOnly bool
		enabledOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered providers",
		Run: func(cmd *cobra.Command, args []string) {
			f := registry.AllProviders
			if customOnly {
				f.BuiltIn = false
			}
			if builtinOnly {
				f.Custom = false
			}
			f.EnabledOnly = enabledOnly

			descs := getEngine().Providers(f)
			fmt.Print(newRenderer().Providers(descs))
		},
	}

	cmd.Flags().BoolVar(&customOnly, "custom", false, "Only custom providers")
	cmd.Flags().BoolVar(&builtinOnly, "builtin", false, "Only built-in providers")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only enabled providers")
	return cmd
}

func providerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one provider in detail",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			d, err := getEngine().Provider(args[0])
			if err != nil {
				exitOnError(err)
			}
			fmt.Print(newRenderer().Provider(d))
		},
	}
}

func providerAddCmd() *cobra.Command {
	var (
		name        string
		format      string
		baseURL     string
		apiKeyEnv   string
		model       string
		inputCost   float64
		outputCost  float64
		speedFactor float64
		quality     float64
		concurrency int
		description string
		tags        []string
	)

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Register a custom provider",
		Long: `Register a custom provider descriptor.

Examples:
  ensemble provider add my-llm --format openai --base-url http://localhost:8080/v1 \
    --key-env MY_LLM_KEY --model my-model --quality 0.7
  ensemble provider add local --format custom --base-url http://localhost:11434 \
    --key-env OLLAMA_KEY --model codellama`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			f, err := adapter.ParseFormat(format)
			if err != nil {
				exitOnError(err)
			}

			d := registry.Descriptor{
				ID:          args[0],
				Name:        name,
				Format:      f,
				BaseURL:     baseURL,
				APIKeyEnv:   apiKeyEnv,
				Model:       model,
				InputCost:   inputCost,
				OutputCost:  outputCost,
				SpeedFactor: speedFactor,
				Quality:     quality,
				Concurrency: concurrency,
				Enabled:     true,
				Description: description,
				Tags:        tags,
			}
			if d.Name == "" {
				d.Name = d.ID
			}

			if err := getEngine().RegisterProvider(context.Background(), d); err != nil {
				exitOnError(err)
			}
			fmt.Printf("✓ Provider registered: %s\n", d.ID)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to id)")
	cmd.Flags().StringVar(&format, "format", "openai", "Wire format (openai|anthropic|google|custom)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL")
	cmd.Flags().StringVar(&apiKeyEnv, "key-env", "", "Environment variable holding the API key")
	cmd.Flags().StringVar(&model, "model", "", "Model identifier")
	cmd.Flags().Float64Var(&inputCost, "input-cost", 0.001, "Input cost per 1K tokens (USD)")
	cmd.Flags().Float64Var(&outputCost, "output-cost", 0.002, "Output cost per 1K tokens (USD)")
	cmd.Flags().Float64Var(&speedFactor, "speed", 1.0, "Relative speed factor")
	cmd.Flags().Float64Var(&quality, "quality", 0.5, "Quality rank in (0,1]")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Max in-flight calls (0 = unlimited)")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Tags")
	return cmd
}

func providerUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update provider fields",
		Long: `Update provider fields. Only flags you set are changed.
Built-in providers accept updates in memory for this process only.

Examples:
  ensemble provider update my-llm --quality 0.8
  ensemble provider update gpt-4o --disable`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var p registry.Patch

			setStr := func(flag string, dst **string) {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					*dst = &v
				}
			}
			setF64 := func(flag string, dst **float64) {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetFloat64(flag)
					*dst = &v
				}
			}

			setStr("name", &p.Name)
			setStr("base-url", &p.BaseURL)
			setStr("key-env", &p.APIKeyEnv)
			setStr("model", &p.Model)
			setStr("description", &p.Description)
			setF64("input-cost", &p.InputCost)
			setF64("output-cost", &p.OutputCost)
			setF64("speed", &p.SpeedFactor)
			setF64("quality", &p.Quality)
			if cmd.Flags().Changed("concurrency") {
				v, _ := cmd.Flags().GetInt("concurrency")
				p.Concurrency = &v
			}
			if cmd.Flags().Changed("enable") {
				v := true
				p.Enabled = &v
			}
			if cmd.Flags().Changed("disable") {
				v := false
				p.Enabled = &v
			}
			if cmd.Flags().Changed("tags") {
				p.Tags, _ = cmd.Flags().GetStringSlice("tags")
			}

			if err := getEngine().UpdateProvider(context.Background(), args[0], p); err != nil {
				exitOnError(err)
			}
			fmt.Printf("✓ Provider updated: %s\n", args[0])
		},
	}

	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("base-url", "", "API base URL")
	cmd.Flags().String("key-env", "", "Environment variable holding the API key")
	cmd.Flags().String("model", "", "Model identifier")
	cmd.Flags().String("description", "", "Free-form description")
	cmd.Flags().Float64("input-cost", 0, "Input cost per 1K tokens (USD)")
	cmd.Flags().Float64("output-cost", 0, "Output cost per 1K tokens (USD)")
	cmd.Flags().Float64("speed", 0, "Relative speed factor")
	cmd.Flags().Float64("quality", 0, "Quality rank in (0,1]")
	cmd.Flags().Int("concurrency", 0, "Max in-flight calls")
	cmd.Flags().Bool("enable", false, "Enable the provider")
	cmd.Flags().Bool("disable", false, "Disable the provider")
	cmd.Flags().StringSlice("tags", nil, "Replace tags")
	return cmd
}

func providerRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a custom provider",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := getEngine().RemoveProvider(context.Background(), args[0]); err != nil {
				exitOnError(err)
			}
			fmt.Printf("✓ Provider removed: %s\n", args[0])
		},
	}
}

func providerTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Send a sample prompt through the provider",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := getEngine().TestProvider(context.Background(), args[0])
			if err != nil {
				exitOnError(err)
			}
			fmt.Print(newRenderer().Probe(res))
			if !res.Success {
				os.Exit(1)
			}
		},
	}
}

func providerExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <id>",
		Short: "Export a provider descriptor as JSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			d, err := getEngine().ExportProvider(args[0])
			if err != nil {
				exitOnError(err)
			}
			data, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				exitOnError(err)
			}
			fmt.Println(string(data))
		},
	}
}

func providerImportCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a provider descriptor from JSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				exitOnError(err)
			}

			var d registry.Descriptor
			if err := json.Unmarshal(data, &d); err != nil {
				exitOnError(err)
			}

			if err := getEngine().ImportProvider(context.Background(), d, overwrite); err != nil {
				exitOnError(err)
			}
			fmt.Printf("✓ Provider imported: %s\n", d.ID)
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing custom provider")
	return cmd
}

func providerStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show rolling per-provider call stats",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(newRenderer().ProviderStats(getEngine().ProviderStats()))
		},
	}
}
