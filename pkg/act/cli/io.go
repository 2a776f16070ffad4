// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package cli provides utilities for building CLI commands using the act framework.
package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// IO provides input/output streams for CLI commands.
type IO struct {
	In  io.Reader // stdin
	Out io.Writer // stdout
	Err io.Writer // stderr
}

var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

// PrintError writes err to w, highlighted when w is a terminal.
func PrintError(w io.Writer, err error) {
	red.Fprintf(w, "Error: %v\n", err)
}

// PrintNotice writes a highlighted informational line to w.
func PrintNotice(w io.Writer, format string, args ...any) {
	yellow.Fprintln(w, fmt.Sprintf(format, args...))
}
