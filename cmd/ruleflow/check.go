package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	ruleflow "github.com/Jedsadha1777/RuleFlow-sub002"
)

func checkCmd() *cobra.Command {
	var specPath string
	var conditions bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a spec and render its structure",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(specPath)
			if err != nil {
				return err
			}
			if err := ruleflow.Validate(spec); err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, spec.String())
			if conditions {
				for _, f := range spec.Formulas {
					for _, w := range f.When {
						fmt.Fprintf(os.Stdout, "\n%s:\n%s", f.ID, w.If.Tree())
					}
				}
			}
			slog.Info("spec is valid", "formulas", len(spec.Formulas))
			return nil
		},
	}

	cmd.Flags().StringVarP(&specPath, "spec", "s", "", "spec JSON file (required)")
	cmd.Flags().BoolVar(&conditions, "conditions", false, "render switch condition trees")
	cmd.MarkFlagRequired("spec")
	return cmd
}
