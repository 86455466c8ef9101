package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/anacache"
)

var flagRoot string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show the cached data states, libraries and outline of one file",
	Long:  "Analyzes the directory around file (or --root), then prints every datum the cache holds for file with its state, the libraries it belongs to, and its top-level declarations.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&flagRoot, "root", "", "directory to analyze first (default: the file's directory)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	file, err := filepath.Abs(args[0])
	if err != nil {
		return outputError("inspect", fmt.Errorf("resolving path %q: %w", args[0], err))
	}
	root := flagRoot
	if root == "" {
		root = filepath.Dir(file)
	}
	rootDir, err := resolveTargetDir([]string{root})
	if err != nil {
		return outputError("inspect", err)
	}

	engine, err := anacache.New(engineOptions("", 0)...)
	if err != nil {
		return outputError("inspect", fmt.Errorf("creating engine: %w", err))
	}
	if err := engine.AnalyzeDirectory(cmd.Context(), rootDir); err != nil {
		return outputError("inspect", fmt.Errorf("analyzing: %w", err))
	}
	// The file may be outside root or filtered from discovery.
	if err := engine.AnalyzeFiles(cmd.Context(), []string{file}); err != nil {
		return outputError("inspect", fmt.Errorf("analyzing: %w", err))
	}

	q := engine.Query()
	res := CLIInspect{
		File:      file,
		Libraries: sourceStrings(q.Libraries(file)),
		States:    toCLIStates(q.States(file)),
		Outline:   toCLIDecls(q.Outline(file)),
	}
	if len(res.States) == 0 {
		return outputError("inspect", fmt.Errorf("no cached data for %s", file))
	}
	return outputResult(CLIResult{Command: "inspect", Results: res})
}

func sourceStrings(ids []anacache.SourceID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
