package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/wippyai/wasm-scripthost/diag"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	posColor     = color.New(color.Bold)
	codeColor    = color.New(color.FgCyan)
)

func printDiagnostics(w io.Writer, diags []diag.Diagnostic, useColor bool) {
	for _, d := range diags {
		fmt.Fprintln(w, formatDiagnostic(d, useColor))
	}
}

func formatDiagnostic(d diag.Diagnostic, useColor bool) string {
	if !useColor {
		return d.String()
	}

	sev := warningColor
	if d.Severity == diag.SevError {
		sev = errorColor
	}
	for _, c := range []*color.Color{sev, posColor, codeColor} {
		c.EnableColor()
	}

	loc := d.Pos.String()
	if d.Source != "" {
		loc = d.Source + ":" + loc
	}
	out := posColor.Sprint(loc) + ": " + sev.Sprint(d.Severity.String())
	if d.Code != "" {
		out += " " + codeColor.Sprint(string(d.Code))
	}
	return out + ": " + d.Message
}
