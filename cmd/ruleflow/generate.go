package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Jedsadha1777/RuleFlow-sub002/codegen"
)

func generateCmd() *cobra.Command {
	var specPath, outPath, funcName, pkgName string
	var comments, examples, interfaces bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile a spec into a native Go function",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(specPath)
			if err != nil {
				return err
			}

			gen, err := codegen.Generate(spec, codegen.Options{
				FunctionName:    funcName,
				PackageName:     pkgName,
				IncludeComments: comments,
				IncludeExamples: examples,
			})
			if err != nil {
				return err
			}

			code := gen.Code
			if interfaces {
				code += "\n" + gen.Interfaces
			}

			if outPath == "" {
				fmt.Fprint(os.Stdout, code)
			} else if err := os.WriteFile(outPath, []byte(code), 0o644); err != nil {
				return err
			}

			slog.Info("generated",
				"function", funcName,
				"inputs", gen.Metadata.InputCount,
				"outputs", gen.Metadata.OutputCount,
				"size", humanize.Bytes(uint64(len(code))),
				"estimated_gain", gen.Metadata.EstimatedGain)
			return nil
		},
	}

	cmd.Flags().StringVarP(&specPath, "spec", "s", "", "spec JSON file (required)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&funcName, "func", "Evaluate", "generated function name")
	cmd.Flags().StringVar(&pkgName, "package", "main", "generated package name")
	cmd.Flags().BoolVar(&comments, "comments", true, "annotate each formula block")
	cmd.Flags().BoolVar(&examples, "examples", false, "append an example invocation")
	cmd.Flags().BoolVar(&interfaces, "interfaces", false, "append input/output struct declarations")
	cmd.MarkFlagRequired("spec")
	return cmd
}
