package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jward/anacache"
	"github.com/jward/anacache/hints"
	"github.com/jward/anacache/internal/config"
)

var (
	flagFormat   string
	flagConfig   string
	flagLogLevel string
)

// stdout receives command results. Tests replace it.
var stdout io.Writer = os.Stdout

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// cfg and logger are set up by the root command before any subcommand runs.
var (
	cfg    *config.Config
	logger zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "anacache",
	Short:         "Incremental source analysis with cached, per-library results",
	Long:          "anacache parses sources with tree-sitter, resolves every unit in each library that includes it, runs Risor hint scripts, and reports the cached diagnostics and data states.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "configuration file (default: "+config.Filename+" at the repository root)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides config): debug|info|warn|error")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(inspectCmd)
}

// setup loads the configuration and installs the logger.
func setup(cmd *cobra.Command) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if err := c.Validate(); err != nil {
		return err
	}
	lvl, _ := c.Level()
	cfg = c
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().Timestamp().Logger()
	return nil
}

// engineOptions builds Engine options from the configuration and the
// command-line overrides. Hint scripts come from the configured directory
// when it exists, else from the embedded defaults.
func engineOptions(languages string, workers int) []anacache.Option {
	opts := []anacache.Option{
		anacache.WithLogger(logger),
		anacache.WithFlushAfterResolve(cfg.FlushAfterResolve),
	}

	langs := cfg.Languages
	if languages != "" {
		langs = splitList(languages)
	}
	if len(langs) > 0 {
		opts = append(opts, anacache.WithLanguages(langs...))
	}

	if workers <= 0 {
		workers = cfg.Workers
	}
	opts = append(opts, anacache.WithWorkers(workers))

	if info, err := os.Stat(cfg.HintsDir); err == nil && info.IsDir() {
		opts = append(opts, anacache.WithHintsDir(cfg.HintsDir))
	} else {
		opts = append(opts, anacache.WithHintsFS(hints.FS))
	}
	return opts
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveConfigPath returns the --config flag value, or the default file at
// the root of the repository containing the working directory.
func resolveConfigPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return filepath.Join(findRepoRoot(wd), config.Filename), nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns startDir if no .git is found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveTargetDir returns the absolute path of the directory to analyze.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}
