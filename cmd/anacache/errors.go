package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/anacache"
)

var errorsCmd = &cobra.Command{
	Use:   "errors [path]",
	Short: "List the diagnostics of a file or of every source in a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runErrors,
}

func runErrors(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return outputError("errors", fmt.Errorf("resolving path %q: %w", path, err))
	}
	info, err := os.Stat(abs)
	if err != nil {
		return outputError("errors", fmt.Errorf("not found: %s", abs))
	}

	engine, err := anacache.New(engineOptions("", 0)...)
	if err != nil {
		return outputError("errors", fmt.Errorf("creating engine: %w", err))
	}

	var diags []anacache.Diagnostic
	if info.IsDir() {
		if err := engine.AnalyzeDirectory(cmd.Context(), abs); err != nil {
			return outputError("errors", fmt.Errorf("analyzing: %w", err))
		}
		diags = engine.Query().Diagnostics()
	} else {
		if err := engine.AnalyzeFiles(cmd.Context(), []string{abs}); err != nil {
			return outputError("errors", fmt.Errorf("analyzing: %w", err))
		}
		diags = engine.Query().Errors(abs)
	}

	out := toCLIDiagnostics(diags)
	total := len(out)
	return outputResult(CLIResult{Command: "errors", Results: out, TotalCount: &total})
}
