// Command ruleflow loads formula specifications from JSON and evaluates,
// validates, or compiles them.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	ruleflow "github.com/Jedsadha1777/RuleFlow-sub002"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:           "ruleflow",
		Short:         "Evaluate, validate and compile formula specifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.AddCommand(evalCmd(), generateCmd(), checkCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err.Error())
		os.Exit(1)
	}
}

func loadSpec(path string) (*ruleflow.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec ruleflow.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &spec, nil
}

func loadInputs(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inputs map[string]any
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return inputs, nil
}
