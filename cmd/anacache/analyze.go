package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/anacache"
)

var (
	flagReport    string
	flagLanguages string
	flagWorkers   int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a source tree and print a summary",
	Long:  "Parses, assembles, resolves and hints every source under path, prints a summary of the cache, and optionally writes a SQLite report.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagReport, "report", "", "write a SQLite report to this path (default: report from config)")
	analyzeCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. c,python)")
	analyzeCmd.Flags().IntVar(&flagWorkers, "workers", 0, "concurrent phase computations (default: from config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	start := time.Now()
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return outputError("analyze", err)
	}

	engine, err := anacache.New(engineOptions(flagLanguages, flagWorkers)...)
	if err != nil {
		return outputError("analyze", fmt.Errorf("creating engine: %w", err))
	}
	if err := engine.AnalyzeDirectory(cmd.Context(), targetDir); err != nil {
		return outputError("analyze", fmt.Errorf("analyzing: %w", err))
	}

	reportPath := flagReport
	if reportPath == "" {
		reportPath = cfg.Report
	}
	if reportPath != "" {
		if err := engine.ExportReport(reportPath); err != nil {
			return outputError("analyze", err)
		}
	}

	fmt.Fprintf(os.Stderr, "Analyzed %s in %s\n", targetDir, time.Since(start).Round(time.Millisecond))
	return outputResult(CLIResult{
		Command: "analyze",
		Results: toCLISummary(engine.Query().Summary(), reportPath),
	})
}
