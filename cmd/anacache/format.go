package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	hintColor    = color.New(color.FgCyan)
	validColor   = color.New(color.FgGreen)
	flushedColor = color.New(color.FgBlue)
	dimColor     = color.New(color.Faint)
)

// paint colors a severity or state name for text output.
func paint(s string) string {
	switch s {
	case "error", "ERROR":
		return errorColor.Sprint(s)
	case "warning":
		return warningColor.Sprint(s)
	case "hint":
		return hintColor.Sprint(s)
	case "VALID":
		return validColor.Sprint(s)
	case "FLUSHED":
		return flushedColor.Sprint(s)
	case "INVALID", "IN_PROCESS":
		return dimColor.Sprint(s)
	}
	return s
}

// formatDiagnosticsText formats diagnostics as compiler-style lines.
func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	for _, d := range diags {
		fmt.Fprintf(w, "%s:%d:%d: %s [%s] %s\n",
			d.File, d.Line, d.Col, paint(d.Severity), d.Code, d.Message)
	}
}

// formatStatesText formats cached data states as aligned columns.
func formatStatesText(w io.Writer, states []CLIState) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DESCRIPTOR\tLIBRARY\tSTATE\tERROR")
	for _, s := range states {
		lib := s.Library
		if lib == "" {
			lib = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Descriptor, lib, paint(s.State), s.Error)
	}
	tw.Flush()
}

func formatDeclsText(w io.Writer, decls []CLIDecl) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tEXPORTED\tLINE\tCOL")
	for _, d := range decls {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\n", d.Name, d.Kind, d.Exported, d.Line, d.Col)
	}
	tw.Flush()
}

func formatInspectText(w io.Writer, res CLIInspect) {
	fmt.Fprintln(w, res.File)
	fmt.Fprintln(w, strings.Repeat("=", len(res.File)))
	if len(res.Libraries) > 0 {
		fmt.Fprintf(w, "Libraries: %s\n", strings.Join(res.Libraries, ", "))
	}
	fmt.Fprintln(w)
	formatStatesText(w, res.States)
	if len(res.Outline) > 0 {
		fmt.Fprintln(w)
		formatDeclsText(w, res.Outline)
	}
}

// formatSummaryText formats CLISummary as readable text.
func formatSummaryText(w io.Writer, s CLISummary) {
	fmt.Fprintln(w, "Analysis Summary")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "Sources:    %d (%d units, %d resources)\n", s.Sources, s.Units, s.Resources)
	fmt.Fprintf(w, "Libraries:  %d (%d launchable)\n", s.Libraries, s.Launchable)
	fmt.Fprintf(w, "Parts:      %d\n", s.Parts)
	fmt.Fprintf(w, "Diagnostics: %d %s, %d %s, %d %s\n",
		s.Errors, paint("error"), s.Warnings, paint("warning"), s.Hints, paint("hint"))
	if len(s.States) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Data States:")
		for _, k := range sortedKeys(s.States) {
			fmt.Fprintf(w, "  %s: %d\n", paint(k), s.States[k])
		}
	}
	if s.Report != "" {
		fmt.Fprintf(w, "\nReport: %s\n", s.Report)
	}
}

// outputResult writes the result in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(stdout, result)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIDiagnostic:
		if len(v) == 0 {
			fmt.Fprintln(w, "No diagnostics.")
			return nil
		}
		formatDiagnosticsText(w, v)
	case CLIInspect:
		formatInspectText(w, v)
	case CLISummary:
		formatSummaryText(w, v)
	case nil:
	default:
		return fmt.Errorf("text output not supported for %T", v)
	}
	return nil
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
