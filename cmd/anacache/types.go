package main

import (
	"path/filepath"
	"sort"

	"github.com/jward/anacache"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIDiagnostic is a JSON-friendly diagnostic with 1-based positions.
type CLIDiagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// CLIState is one cached datum and its state.
type CLIState struct {
	Descriptor string `json:"descriptor"`
	Library    string `json:"library,omitempty"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
}

// CLIDecl is a top-level declaration with 1-based positions.
type CLIDecl struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Exported bool   `json:"exported"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
}

type CLIInspect struct {
	File      string     `json:"file"`
	Libraries []string   `json:"libraries"`
	States    []CLIState `json:"states"`
	Outline   []CLIDecl  `json:"outline"`
}

// CLISummary mirrors anacache.Summary for output.
type CLISummary struct {
	Sources    int            `json:"sources"`
	Units      int            `json:"units"`
	Resources  int            `json:"resources"`
	Libraries  int            `json:"libraries"`
	Parts      int            `json:"parts"`
	Launchable int            `json:"launchable"`
	Errors     int            `json:"errors"`
	Warnings   int            `json:"warnings"`
	Hints      int            `json:"hints"`
	States     map[string]int `json:"states"`
	Report     string         `json:"report,omitempty"`
}

func toCLIDiagnostics(diags []anacache.Diagnostic) []CLIDiagnostic {
	out := make([]CLIDiagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, CLIDiagnostic{
			File:     filepath.ToSlash(string(d.Source)),
			Line:     d.Line + 1,
			Col:      d.Column + 1,
			Severity: d.Severity.String(),
			Code:     d.Code,
			Message:  d.Message,
		})
	}
	return out
}

func toCLIStates(states []anacache.DescriptorState) []CLIState {
	out := make([]CLIState, 0, len(states))
	for _, s := range states {
		cs := CLIState{
			Descriptor: s.Descriptor,
			Library:    string(s.Library),
			State:      s.State.String(),
		}
		if s.Err != nil {
			cs.Error = s.Err.Error()
		}
		out = append(out, cs)
	}
	return out
}

func toCLIDecls(decls []anacache.Decl) []CLIDecl {
	out := make([]CLIDecl, 0, len(decls))
	for _, d := range decls {
		out = append(out, CLIDecl{
			Name:     d.Name,
			Kind:     d.Kind,
			Exported: d.Exported,
			Line:     d.Line + 1,
			Col:      d.Column + 1,
		})
	}
	return out
}

func toCLISummary(s anacache.Summary, report string) CLISummary {
	return CLISummary{
		Sources:    s.Sources,
		Units:      s.Units,
		Resources:  s.Resources,
		Libraries:  s.Libraries,
		Parts:      s.Parts,
		Launchable: s.Launchable,
		Errors:     s.Errors,
		Warnings:   s.Warnings,
		Hints:      s.Hints,
		States:     s.States,
		Report:     report,
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
