package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	ruleflow "github.com/Jedsadha1777/RuleFlow-sub002"
)

func evalCmd() *cobra.Command {
	var specPath, inputsPath string
	var trace bool

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a spec against a set of inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(specPath)
			if err != nil {
				return err
			}
			inputs, err := loadInputs(inputsPath)
			if err != nil {
				return err
			}
			if err := ruleflow.Validate(spec); err != nil {
				return err
			}
			slog.Debug("spec loaded", "formulas", len(spec.Formulas), "inputs", len(inputs))

			engine := ruleflow.NewEngine()
			if trace {
				result, t, err := engine.EvaluateTraced(spec, inputs)
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, t.Report(spec, result))
				return nil
			}

			result, err := engine.Evaluate(spec, inputs)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&specPath, "spec", "s", "", "spec JSON file (required)")
	cmd.Flags().StringVarP(&inputsPath, "inputs", "i", "", "inputs JSON file")
	cmd.Flags().BoolVarP(&trace, "trace", "t", false, "render a step-by-step evaluation report")
	cmd.MarkFlagRequired("spec")
	return cmd
}
